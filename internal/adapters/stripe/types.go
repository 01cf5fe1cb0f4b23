package stripe

// API response structures for the subset of the gateway's REST API this
// adapter consumes. Amounts are integer minor units (cents) on the wire.

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Param   string `json:"param"`
		Message string `json:"message"`
	} `json:"error"`
}

type apiCharge struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	Created  int64  `json:"created"`
}

type apiRefund struct {
	ID     string `json:"id"`
	Charge string `json:"charge"`
	Amount int64  `json:"amount"`
	Status string `json:"status"`
}

type apiCard struct {
	ID          string `json:"id"`
	Brand       string `json:"brand"`
	Last4       string `json:"last4"`
	Fingerprint string `json:"fingerprint"`
	ExpMonth    int    `json:"exp_month"`
	ExpYear     int    `json:"exp_year"`
}

type apiCardList struct {
	Data []apiCard `json:"data"`
}

type apiCustomer struct {
	ID            string      `json:"id"`
	Email         string      `json:"email"`
	Currency      string      `json:"currency"`
	DefaultSource string      `json:"default_source"`
	Sources       apiCardList `json:"sources"`
}

type apiPlan struct {
	ID string `json:"id"`
}

type apiSubscription struct {
	ID                string   `json:"id"`
	Status            string   `json:"status"`
	Quantity          int      `json:"quantity"`
	CurrentPeriodEnd  int64    `json:"current_period_end"`
	TrialEnd          int64    `json:"trial_end"`
	CancelAtPeriodEnd bool     `json:"cancel_at_period_end"`
	Plan              *apiPlan `json:"plan"`
}

type apiInvoiceLine struct {
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

type apiInvoiceLineList struct {
	Data []apiInvoiceLine `json:"data"`
}

type apiInvoice struct {
	ID        string             `json:"id"`
	Total     int64              `json:"total"`
	Subtotal  int64              `json:"subtotal"`
	Currency  string             `json:"currency"`
	Date      int64              `json:"date"`
	Paid      bool               `json:"paid"`
	Attempted bool               `json:"attempted"`
	Lines     apiInvoiceLineList `json:"lines"`
}

type apiInvoiceList struct {
	Data []apiInvoice `json:"data"`
}

type apiToken struct {
	ID   string  `json:"id"`
	Card apiCard `json:"card"`
}
