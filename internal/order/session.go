package order

import (
	"time"

	"nordlayer-bot/pkg/api"
)

// Step is a stage in the fixed order-collection sequence.
type Step string

const (
	StepServiceSelection Step = "service_selection"
	StepContactInfo      Step = "contact_info"
	StepFileUpload       Step = "file_upload"
	StepSpecifications   Step = "specifications"
	StepDelivery         Step = "delivery"
	StepConfirmation     Step = "confirmation"
	StepSubmitted        Step = "submitted"
)

// PhoneStatus distinguishes "not asked yet" from an explicit skip. The
// distinction keeps the contact flow from re-prompting after a skip.
type PhoneStatus string

const (
	PhoneUnset    PhoneStatus = "unset"
	PhoneSkipped  PhoneStatus = "skipped"
	PhoneProvided PhoneStatus = "provided"
)

// FileRef is one uploaded model file tracked in the session.
type FileRef struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	RemoteID string `json:"remote_id"`
}

// Specifications are the print parameters. Zero values mean "not chosen".
type Specifications struct {
	Material string `json:"material,omitempty"`
	Quality  string `json:"quality,omitempty"`
	Infill   int    `json:"infill,omitempty"`
}

func (s Specifications) Complete() bool {
	return s.Material != "" && s.Quality != "" && s.Infill != 0
}

// OrderSession is one user's order in progress. Owned exclusively by
// the session store; the state machine borrows it for one event.
type OrderSession struct {
	UserID          int64          `json:"user_id"`
	Step            Step           `json:"step"`
	ServiceID       int            `json:"service_id,omitempty"`
	ServiceName     string         `json:"service_name,omitempty"`
	CustomerName    string         `json:"customer_name,omitempty"`
	CustomerEmail   string         `json:"customer_email,omitempty"`
	PhoneStatus     PhoneStatus    `json:"phone_status"`
	CustomerPhone   string         `json:"customer_phone,omitempty"`
	Files           []FileRef      `json:"files,omitempty"`
	Specs           Specifications `json:"specs"`
	DeliveryNeeded  *bool          `json:"delivery_needed,omitempty"`
	DeliveryAddress string         `json:"delivery_address,omitempty"`
	// SubmissionKey deduplicates one confirmation attempt upstream: it
	// is minted when the session reaches CONFIRMATION and reused when a
	// failed Confirm is retried.
	SubmissionKey string    `json:"submission_key,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (s *OrderSession) clone() *OrderSession {
	cp := *s
	if s.Files != nil {
		cp.Files = make([]FileRef, len(s.Files))
		copy(cp.Files, s.Files)
	}
	if s.DeliveryNeeded != nil {
		v := *s.DeliveryNeeded
		cp.DeliveryNeeded = &v
	}
	return &cp
}

// MissingField returns the first requirement the session does not meet
// yet, or "" when the order is ready for submission.
func (s *OrderSession) MissingField() string {
	switch {
	case s.ServiceID == 0:
		return "service"
	case s.CustomerName == "":
		return "name"
	case s.CustomerEmail == "":
		return "email"
	case s.PhoneStatus == PhoneUnset:
		return "phone"
	case !s.Specs.Complete():
		return "specifications"
	case s.DeliveryNeeded == nil:
		return "delivery"
	case *s.DeliveryNeeded && s.DeliveryAddress == "":
		return "delivery_address"
	}
	return ""
}

// Payload converts the collected session into the upstream order shape.
func (s *OrderSession) Payload() api.OrderPayload {
	specs := map[string]any{
		"material":     s.Specs.Material,
		"quality":      s.Specs.Quality,
		"infill":       s.Specs.Infill,
		"files_info":   s.Files,
		"order_source": "telegram_bot",
		"bot_user_id":  s.UserID,
	}
	if s.PhoneStatus == PhoneProvided {
		specs["customer_phone"] = s.CustomerPhone
	}

	p := api.OrderPayload{
		CustomerName:    s.CustomerName,
		CustomerEmail:   s.CustomerEmail,
		CustomerContact: s.CustomerEmail,
		ServiceID:       s.ServiceID,
		Source:          "TELEGRAM",
		Specifications:  specs,
	}
	if s.PhoneStatus == PhoneProvided {
		p.CustomerPhone = s.CustomerPhone
	}
	if s.DeliveryNeeded != nil {
		if *s.DeliveryNeeded {
			p.DeliveryNeeded = "true"
			p.DeliveryDetails = s.DeliveryAddress
		} else {
			p.DeliveryNeeded = "false"
		}
	}
	return p
}
