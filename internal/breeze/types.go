package breeze

// Customer is a Breeze customer record.
type Customer struct {
	ID          string `json:"id"`
	ReferenceID string `json:"referenceId,omitempty"`
	Email       string `json:"email,omitempty"`
	SignupAt    int64  `json:"signupAt,omitempty"`
}

// CreateCustomerRequest is the body of POST /v1/customers.
type CreateCustomerRequest struct {
	ReferenceID string `json:"referenceId"`
	Email       string `json:"email"`
	// SignupAt is the signup time in epoch milliseconds.
	SignupAt int64 `json:"signupAt"`
}

// Product is a payment page line item. Amount is the unit price in minor
// currency units.
type Product struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Currency    string   `json:"currency"`
	Amount      int64    `json:"amount"`
	Quantity    int      `json:"quantity"`
	Images      []string `json:"images,omitempty"`
	ID          string   `json:"id,omitempty"`
}

// CustomerRef links a payment page to an existing customer.
type CustomerRef struct {
	ID string `json:"id"`
}

// PaymentPageRequest is the body of POST /v1/payment_pages.
type PaymentPageRequest struct {
	Products          []Product   `json:"products"`
	BillingEmail      string      `json:"billingEmail"`
	ClientReferenceID string      `json:"clientReferenceId"`
	SuccessReturnURL  string      `json:"successReturnUrl"`
	FailReturnURL     string      `json:"failReturnUrl"`
	Customer          CustomerRef `json:"customer"`
}

// PaymentPage is a hosted checkout session.
type PaymentPage struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Status string `json:"status,omitempty"`
}

// RefundRequest is the body of POST /v1/payment_pages/{id}/refund. Amount is
// in minor currency units.
type RefundRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason,omitempty"`
}

// Refund is the provider result of a refund request.
type Refund struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
}
