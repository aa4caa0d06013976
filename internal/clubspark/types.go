package clubspark

// Wire types for the subset of the ClubSpark mobile API this tool uses.

type User struct {
	ID           string `json:"ID"`
	FirstName    string `json:"FirstName"`
	LastName     string `json:"LastName"`
	EmailAddress string `json:"EmailAddress"`
}

// Resource is one bookable court within a time slot.
type Resource struct {
	ID        string  `json:"ID"`
	SessionID string  `json:"SessionID"`
	Name      string  `json:"Name"`
	Cost      float64 `json:"Cost"`
}

// TimeSlot groups the courts available at one start time. Time is minutes
// since midnight.
type TimeSlot struct {
	Time      int        `json:"Time"`
	Resources []Resource `json:"Resources"`
}

type Availability struct {
	Result int        `json:"Result"`
	Times  []TimeSlot `json:"Times"`
}

type VenueSettings struct {
	ID              string `json:"ID"`
	Name            string `json:"Name"`
	StripeAccountID string `json:"StripeAccountID"`
}

type AppSettings struct {
	Venue                VenueSettings `json:"Venue"`
	StripePublishableKey string        `json:"StripePublishableKey"`
}

type Payment struct {
	ID     string `json:"ID"`
	Status string `json:"Status"`
	Error  string `json:"Error"`
}

// BookedSession is the reservation result. A negative Result means the venue
// rejected the session after payment.
type BookedSession struct {
	Result        int    `json:"Result"`
	ResourceID    string `json:"ResourceID"`
	SessionID     string `json:"SessionID"`
	TransactionID string `json:"TransactionID"`
}

type CreatePaymentParams struct {
	Description     string
	Cost            float64
	PaymentMethodID string
	ScopeID         string
	VenueID         string
}

type RequestSessionParams struct {
	Venue        string
	PaymentToken string
	Duration     int
	Date         string // YYYY-MM-DD
	Amount       float64
	StartTime    int // minutes since midnight
	ResourceID   string
	SessionID    string
}
