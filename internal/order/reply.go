package order

// Outcome classifies what happened to an event, mirroring the error
// taxonomy: recoverable input problems are outcomes with a re-prompt,
// not Go errors.
type Outcome string

const (
	OutcomeOK                Outcome = "ok"
	OutcomeValidationError   Outcome = "validation_error"
	OutcomeInvalidSelection  Outcome = "invalid_selection"
	OutcomeUnsupportedFormat Outcome = "unsupported_format"
	OutcomeFileTooLarge      Outcome = "file_too_large"
	OutcomeNothingToRemove   Outcome = "nothing_to_remove"
	OutcomeSubmissionFailed  Outcome = "submission_failed"
	OutcomeUpstreamError     Outcome = "upstream_error"
	OutcomeSubmitted         Outcome = "submitted"
	OutcomeCancelled         Outcome = "cancelled"
	OutcomeNoSession         Outcome = "no_session"
)

// Button is a message-intent button; the transport renders it into the
// chat platform's markup.
type Button struct {
	Label string
	Data  string
}

// Reply is the outbound message intent computed for one inbound event.
type Reply struct {
	Text     string
	Keyboard [][]Button
	Outcome  Outcome
}

func row(buttons ...Button) []Button { return buttons }

// Callback data understood by the transport layer. Kept stable because
// they live inside previously sent keyboards.
const (
	CBCancel            = "order_cancel"
	CBSkipPhone         = "order_skip_phone"
	CBContinueFiles     = "order_continue_with_files"
	CBRemoveLastFile    = "order_remove_last_file"
	CBConfirm           = "order_confirm"
	CBEditMenu          = "order_edit_menu"
	CBDeliveryPickup    = "order_delivery_pickup"
	CBDeliveryShipping  = "order_delivery_shipping"
	CBBackToServices    = "order_back_to_services"
	CBBackToContacts    = "order_back_to_contacts"
	CBBackToFiles       = "order_back_to_files"
	CBBackToSpecs       = "order_back_to_specs"
	CBBackToDelivery    = "order_back_to_delivery"
	CBSelectServicePfx  = "order_select_service_"
	CBSelectMaterialPfx = "order_spec_material_"
	CBSelectQualityPfx  = "order_spec_quality_"
	CBSelectInfillPfx   = "order_spec_infill_"
	CBMainMenu          = "main_menu"
	CBStartOrder        = "start_order"
	CBShowServices      = "show_services"
	CBTrackOrder        = "track_order"
	CBHelp              = "help"
	CBSubscribe         = "subscribe_notifications"
	CBUnsubscribe       = "unsubscribe_notifications"
	CBCancelTracking    = "cancel_tracking"
	CBCancelSubscribe   = "cancel_subscription"
)

var cancelButton = Button{Label: "❌ Отменить заказ", Data: CBCancel}
