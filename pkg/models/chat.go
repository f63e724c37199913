package models

// Message is an inbound chat message. It is never mutated after receipt.
type Message struct {
	Text string
	// BookingCode is an optional hint supplied by the caller alongside the text.
	BookingCode string
	// User is nil for anonymous callers.
	User *User
}

// ChatRequest is the JSON body accepted by the chat endpoint.
type ChatRequest struct {
	Message     string `json:"message" validate:"required,max=2000"`
	BookingCode string `json:"booking_code,omitempty" validate:"omitempty,max=40"`
}

// ChatResponse is the caller-facing result of handling one message.
type ChatResponse struct {
	Reply              string                      `json:"reply"`
	UsedContextKeys    []string                    `json:"used_context_keys"`
	SuggestedActions   []string                    `json:"suggested_actions"`
	RelatedTrips       []TripSummary               `json:"related_trips"`
	RelatedPromos      []PromoSummary              `json:"related_promos"`
	UserBookings       []BookingSummary            `json:"user_bookings"`
	GeneratedQueries   []string                    `json:"generated_queries"`
	RelatedCollections map[string][]map[string]any `json:"related_collections"`
	Summary            string                      `json:"summary,omitempty"`
}

// NewChatResponse returns a response with every collection initialised so
// that it serialises as empty arrays and objects rather than null.
func NewChatResponse(reply string, usedKeys []string) *ChatResponse {
	if usedKeys == nil {
		usedKeys = []string{}
	}
	return &ChatResponse{
		Reply:              reply,
		UsedContextKeys:    usedKeys,
		SuggestedActions:   []string{},
		RelatedTrips:       []TripSummary{},
		RelatedPromos:      []PromoSummary{},
		UserBookings:       []BookingSummary{},
		GeneratedQueries:   []string{},
		RelatedCollections: map[string][]map[string]any{},
	}
}

// GateOutcome is the result of running the gating pipeline on a message.
type GateOutcome struct {
	Blocked  bool
	Stage    string
	Reply    string
	UsedKeys []string
	// Verified holds identifiers confirmed to exist, populated when the
	// message passed every stage.
	Verified []EntityIdentifier
}

// VerifiedBookingCode returns the booking code confirmed by the pipeline, if any.
func (g *GateOutcome) VerifiedBookingCode() (string, bool) {
	for _, id := range g.Verified {
		if id.Kind == EntityBooking {
			return id.Key, true
		}
	}
	return "", false
}

// ReplyOutOfContext is returned when no answer can be grounded in the
// database and a general travel answer is not allowed.
const ReplyOutOfContext = "Maaf, pertanyaan di luar konteks database ini."

// AggregateResult collects everything the executed queries and the private
// booking paths contributed to one request. Chunks keep the order in which
// their sources were folded in.
type AggregateResult struct {
	RelatedCollections map[string][]map[string]any
	RelatedPromos      []PromoSummary
	RelatedTrips       []TripSummary
	UserBookings       []BookingSummary
	Chunks             []string
	UsedKeys           []string
	GeneratedQueries   []string
}

// NewAggregateResult returns an empty result with initialised collections.
func NewAggregateResult() *AggregateResult {
	return &AggregateResult{
		RelatedCollections: map[string][]map[string]any{},
		RelatedPromos:      []PromoSummary{},
		RelatedTrips:       []TripSummary{},
		UserBookings:       []BookingSummary{},
		Chunks:             []string{},
		UsedKeys:           []string{},
		GeneratedQueries:   []string{},
	}
}
