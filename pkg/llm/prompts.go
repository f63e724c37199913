package llm

import (
	"fmt"
	"strings"
	"time"

	"github.com/travelgo/chat-engine/pkg/sql"
)

const proposalSystemMessage = "Anda adalah asisten pembuat SQL untuk aplikasi TravelGO. " +
	"Jawab hanya dengan JSON valid tanpa penjelasan."

const answerSystemMessage = "Anda adalah asisten TravelGO. Jawab HANYA berdasarkan konteks yang diberikan. " +
	"Jika tidak ada jawaban dalam konteks, jawab: '%s' " +
	"Jangan mengarang, jangan gunakan pengetahuan luar. Jawaban harus singkat dan dalam bahasa Indonesia."

const thematicSystemMessage = "Anda adalah asisten perjalanan TravelGO. Berikan jawaban umum yang singkat " +
	"dalam bahasa Indonesia seputar perjalanan, destinasi, itinerary, dan keamanan perjalanan. " +
	"Jangan menyebut harga, kode promo, jadwal, atau data booking tertentu. " +
	"Jika pertanyaan tidak berkaitan dengan perjalanan, jawab: '%s'"

// tableColumns documents the readable columns of each whitelisted table.
var tableColumns = map[string]string{
	"promos":           "name, promo_code, discount_type, discount_value, start_date, end_date, is_active",
	"trips":            "id, name, slug, location, duration, price, status, is_active",
	"blogs":            "title, slug",
	"trip_schedules":   "id, trip_id, departure_date, return_date, available_slots, booked_slots, status",
	"trip_facilities":  "trip_id, name, type",
	"trip_itineraries": "trip_id, day, title",
	"reviews":          "id, trip_id, reviewer_name, rating",
}

// dateSyntax holds the dialect's date expressions. year and month are
// format strings taking a column name.
type dateSyntax struct {
	today string
	year  string
	month string
}

var dateSyntaxByDialect = map[string]dateSyntax{
	"PostgreSQL": {today: "CURRENT_DATE", year: "EXTRACT(YEAR FROM %s)", month: "EXTRACT(MONTH FROM %s)"},
	"SQL Server": {today: "CAST(GETDATE() AS date)", year: "YEAR(%s)", month: "MONTH(%s)"},
}

func dateSyntaxFor(dialect string) dateSyntax {
	if s, ok := dateSyntaxByDialect[dialect]; ok {
		return s
	}
	return dateSyntaxByDialect["PostgreSQL"]
}

// dateRange is the relative period a message asks about.
type dateRange int

const (
	rangeNone dateRange = iota
	rangeToday
	rangeThisMonth
	rangeThisYear
)

func detectDateRange(message string) dateRange {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "hari ini"):
		return rangeToday
	case strings.Contains(lower, "bulan ini"):
		return rangeThisMonth
	case strings.Contains(lower, "tahun ini"):
		return rangeThisYear
	default:
		return rangeNone
	}
}

// dateFilter returns a predicate over start_date/end_date for r, or "".
func dateFilter(r dateRange, s dateSyntax) string {
	switch r {
	case rangeToday:
		return fmt.Sprintf("start_date <= %s AND end_date >= %s", s.today, s.today)
	case rangeThisMonth:
		return fmt.Sprintf("((%s = %s AND %s = %s) OR (%s = %s AND %s = %s))",
			fmt.Sprintf(s.month, "start_date"), fmt.Sprintf(s.month, s.today),
			fmt.Sprintf(s.year, "start_date"), fmt.Sprintf(s.year, s.today),
			fmt.Sprintf(s.month, "end_date"), fmt.Sprintf(s.month, s.today),
			fmt.Sprintf(s.year, "end_date"), fmt.Sprintf(s.year, s.today))
	case rangeThisYear:
		return fmt.Sprintf("(%s = %s OR %s = %s)",
			fmt.Sprintf(s.year, "start_date"), fmt.Sprintf(s.year, s.today),
			fmt.Sprintf(s.year, "end_date"), fmt.Sprintf(s.year, s.today))
	default:
		return ""
	}
}

func dateHint(message, dialect string) string {
	r := detectDateRange(message)
	filter := dateFilter(r, dateSyntaxFor(dialect))
	switch r {
	case rangeToday:
		return "Tambahkan filter tanggal untuk HARI INI, misalnya " + filter + ". "
	case rangeThisMonth:
		return "Tambahkan filter tanggal untuk BULAN INI, misalnya " + filter + ". "
	case rangeThisYear:
		return "Tambahkan filter tanggal untuk TAHUN INI, misalnya " + filter + ". "
	default:
		return "JANGAN menambahkan filter tanggal (start_date/end_date) kecuali pengguna memintanya secara eksplisit. "
	}
}

func buildProposalPrompt(dialect, message string, allowedTables, hints []string, maxQueries int, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Buat 1-%d query SQL %s SELECT-only, TANPA DDL/DML, TANPA komentar, TANPA multi-statement, TANPA titik koma. ", maxQueries, dialect)
	b.WriteString("WAJIB hanya menggunakan tabel berikut: " + strings.Join(allowedTables, ", ") + ". ")
	b.WriteString("Gunakan kolom yang sesuai skema berikut jika relevan:\n")
	for _, t := range allowedTables {
		if cols, ok := tableColumns[t]; ok {
			fmt.Fprintf(&b, "- %s: %s\n", t, cols)
		}
	}
	b.WriteString("Untuk promos, sertakan kolom start_date, end_date, is_active agar lengkap. ")
	b.WriteString(dateHint(message, dialect))
	fmt.Fprintf(&b, "Tanggal hari ini: %s. ", now.Format("2006-01-02"))
	if len(hints) > 0 {
		b.WriteString("Petunjuk dari pesan: " + strings.Join(hints, "; ") + ". ")
	}
	b.WriteString(`Format jawaban HANYA JSON valid: [{"table":"...","sql":"..."}].`)
	b.WriteString("\n\nPesan pengguna:\n" + message)
	return b.String()
}

func buildAnswerPrompt(message string, chunks []string) string {
	return "KONTEKS:\n" + strings.Join(chunks, "\n\n") + "\n\nPERTANYAAN PENGGUNA:\n" + message
}

// heuristicTripTerms trigger the fallback trip query.
var heuristicTripTerms = []string{"trip", "jadwal", "schedule", "bali", "labuan", "raja amp"}

// heuristicQueries builds fixed proposals for promo and trip questions. They
// go through the same validator as model output.
func heuristicQueries(message, dialect string) []sql.CandidateQuery {
	lower := strings.ToLower(message)
	var out []sql.CandidateQuery

	if strings.Contains(lower, "promo") {
		q := "SELECT name, promo_code, discount_type, discount_value, start_date, end_date, is_active " +
			"FROM promos WHERE is_active = 1"
		if filter := dateFilter(detectDateRange(message), dateSyntaxFor(dialect)); filter != "" {
			q += " AND " + filter
		}
		q += " ORDER BY discount_value DESC"
		out = append(out, sql.CandidateQuery{Table: "promos", SQL: q})
	}

	for _, term := range heuristicTripTerms {
		if strings.Contains(lower, term) {
			out = append(out, sql.CandidateQuery{
				Table: "trips",
				SQL: "SELECT id, name, slug, location, duration, price, status, is_active " +
					"FROM trips WHERE is_active = 1 AND status = 'published' ORDER BY id DESC",
			})
			break
		}
	}
	return out
}
