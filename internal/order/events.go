package order

// Event is one classified inbound user action. The transport layer
// turns raw updates (text, documents, button presses) into these
// variants; the state machine dispatches on the concrete type, so an
// unhandled (step, event) pair is an explicit omission, not a fallen
// through branch.
type Event interface {
	isEvent()
}

type StartOrder struct{}

type SelectService struct {
	ID int
}

// ContactText is free text typed while contact info is being collected.
// It is routed to the first unset field in name -> email -> phone order.
type ContactText struct {
	Text string
}

// SkipPhone marks the phone as explicitly skipped, which is distinct
// from "not asked yet".
type SkipPhone struct{}

type FileUploaded struct {
	File FileRef
}

type RemoveLastFile struct{}

// ContinueToSpecs leaves the upload step, with or without files.
type ContinueToSpecs struct{}

type SelectMaterial struct {
	Material string
}

type SelectQuality struct {
	Quality string
}

type SelectInfill struct {
	Infill int
}

type ChooseDelivery struct {
	Shipping bool
}

type DeliveryAddressText struct {
	Text string
}

type Confirm struct{}

// NavigateBack re-opens an earlier step. Fields owned by the target
// step become editable again; everything collected for later steps is
// preserved.
type NavigateBack struct {
	Target Step
}

// EditField is the confirmation screen's "edit X" action; it resolves
// to the step owning the field.
type EditField struct {
	Field string
}

// ShowEditMenu opens the field picker on the confirmation screen.
type ShowEditMenu struct{}

type Cancel struct{}

func (StartOrder) isEvent()          {}
func (SelectService) isEvent()       {}
func (ContactText) isEvent()         {}
func (SkipPhone) isEvent()           {}
func (FileUploaded) isEvent()        {}
func (RemoveLastFile) isEvent()      {}
func (ContinueToSpecs) isEvent()     {}
func (SelectMaterial) isEvent()      {}
func (SelectQuality) isEvent()       {}
func (SelectInfill) isEvent()        {}
func (ChooseDelivery) isEvent()      {}
func (DeliveryAddressText) isEvent() {}
func (Confirm) isEvent()             {}
func (NavigateBack) isEvent()        {}
func (EditField) isEvent()           {}
func (ShowEditMenu) isEvent()        {}
func (Cancel) isEvent()              {}

// StepForField maps an editable field to the step owning its UI.
func StepForField(field string) (Step, bool) {
	switch field {
	case "name", "email", "phone", "contacts":
		return StepContactInfo, true
	case "files":
		return StepFileUpload, true
	case "material", "quality", "infill", "specs":
		return StepSpecifications, true
	case "delivery", "address":
		return StepDelivery, true
	case "service":
		return StepServiceSelection, true
	}
	return "", false
}
