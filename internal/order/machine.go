package order

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nordlayer-bot/pkg/api"
)

// Gateway is the slice of the upstream API the state machine consumes.
// The idempotency key identifies one confirmation attempt so a retried
// submission does not create a duplicate order.
type Gateway interface {
	ListServices(ctx context.Context, activeOnly bool) ([]api.Service, error)
	SubmitOrder(ctx context.Context, payload api.OrderPayload, idempotencyKey string) (*api.OrderRef, error)
}

// Machine validates and executes order step transitions. It borrows a
// session from the store for the duration of one event and leaves it
// either advanced-and-consistent or unchanged. Network calls are never
// made while a session is locked: listings and submission happen
// outside Update.
type Machine struct {
	sessions Store
	gateway  Gateway
	logger   *zap.Logger
}

func NewMachine(sessions Store, gateway Gateway, logger *zap.Logger) *Machine {
	return &Machine{
		sessions: sessions,
		gateway:  gateway,
		logger:   logger,
	}
}

// stepRank fixes the forward order of collection steps.
var stepRank = map[Step]int{
	StepServiceSelection: 0,
	StepContactInfo:      1,
	StepFileUpload:       2,
	StepSpecifications:   3,
	StepDelivery:         4,
	StepConfirmation:     5,
	StepSubmitted:        6,
}

// Handle computes the outbound message for one inbound event. Errors
// are reserved for faults the user cannot fix; everything recoverable
// comes back as a Reply with the matching Outcome.
func (m *Machine) Handle(ctx context.Context, userID int64, ev Event) (Reply, error) {
	switch e := ev.(type) {
	case StartOrder:
		return m.startOrder(ctx, userID)
	case SelectService:
		return m.selectService(ctx, userID, e.ID)
	case ContactText:
		return m.contactText(ctx, userID, e.Text)
	case SkipPhone:
		return m.skipPhone(ctx, userID)
	case FileUploaded:
		return m.fileUploaded(ctx, userID, e.File)
	case RemoveLastFile:
		return m.removeLastFile(ctx, userID)
	case ContinueToSpecs:
		return m.continueToSpecs(ctx, userID)
	case SelectMaterial:
		return m.selectMaterial(ctx, userID, e.Material)
	case SelectQuality:
		return m.selectQuality(ctx, userID, e.Quality)
	case SelectInfill:
		return m.selectInfill(ctx, userID, e.Infill)
	case ChooseDelivery:
		return m.chooseDelivery(ctx, userID, e.Shipping)
	case DeliveryAddressText:
		return m.deliveryAddress(ctx, userID, e.Text)
	case Confirm:
		return m.confirm(ctx, userID)
	case NavigateBack:
		return m.navigateBack(ctx, userID, e.Target)
	case EditField:
		target, ok := StepForField(e.Field)
		if !ok {
			return guidanceReply(""), nil
		}
		return m.navigateBack(ctx, userID, target)
	case ShowEditMenu:
		return m.showEditMenu(ctx, userID)
	case Cancel:
		return m.cancel(ctx, userID)
	}
	return Reply{}, fmt.Errorf("unknown event %T", ev)
}

func (m *Machine) startOrder(ctx context.Context, userID int64) (Reply, error) {
	services, err := m.gateway.ListServices(ctx, true)
	if err != nil {
		return upstreamReply(err), nil
	}
	if len(services) == 0 {
		return noServicesReply(), nil
	}

	// /order restarts from scratch even mid-order.
	if _, err := m.sessions.Clear(ctx, userID); err != nil {
		return Reply{}, fmt.Errorf("clear session: %w", err)
	}
	if _, err := m.sessions.Create(ctx, userID); err != nil {
		return Reply{}, fmt.Errorf("create session: %w", err)
	}

	m.logger.Info("order session started", zap.Int64("user_id", userID))
	return catalogReply(services, OutcomeOK), nil
}

func (m *Machine) selectService(ctx context.Context, userID int64, serviceID int) (Reply, error) {
	sess, err := m.sessions.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return noSessionReply(), nil
		}
		return Reply{}, fmt.Errorf("get session: %w", err)
	}
	if sess.Step != StepServiceSelection {
		return guidanceReply(sess.Step), nil
	}

	services, err := m.gateway.ListServices(ctx, true)
	if err != nil {
		return upstreamReply(err), nil
	}

	var selected *api.Service
	for i := range services {
		if services[i].ID == serviceID {
			selected = &services[i]
			break
		}
	}
	if selected == nil {
		// Stale keyboard or service deactivated since listing.
		m.logger.Warn("stale service selection",
			zap.Int64("user_id", userID),
			zap.Int("service_id", serviceID))
		return catalogReply(services, OutcomeInvalidSelection), nil
	}

	if _, err := m.sessions.Update(ctx, userID, func(s *OrderSession) error {
		if s.Step != StepServiceSelection {
			return fmt.Errorf("unexpected step %s", s.Step)
		}
		s.ServiceID = selected.ID
		s.ServiceName = selected.Name
		enterContactInfo(s)
		return nil
	}); err != nil {
		return Reply{}, fmt.Errorf("update session: %w", err)
	}

	return namePrompt(selected.Name), nil
}

func (m *Machine) contactText(ctx context.Context, userID int64, text string) (Reply, error) {
	sess, err := m.sessions.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return noSessionReply(), nil
		}
		return Reply{}, fmt.Errorf("get session: %w", err)
	}
	if sess.Step != StepContactInfo {
		return guidanceReply(sess.Step), nil
	}

	// Route to the first unset field: name -> email -> phone.
	switch {
	case sess.CustomerName == "":
		return m.setName(ctx, userID, text)
	case sess.CustomerEmail == "":
		return m.setEmail(ctx, userID, text)
	case sess.PhoneStatus == PhoneUnset:
		if isSkipWord(text) {
			return m.skipPhone(ctx, userID)
		}
		return m.setPhone(ctx, userID, text)
	}
	return contactsCollectedReply(), nil
}

func (m *Machine) setName(ctx context.Context, userID int64, name string) (Reply, error) {
	if !ValidName(name) {
		return invalidNameReply(), nil
	}
	sess, err := m.sessions.Update(ctx, userID, func(s *OrderSession) error {
		if s.Step != StepContactInfo || s.CustomerName != "" {
			return fmt.Errorf("unexpected step %s", s.Step)
		}
		s.CustomerName = strings.TrimSpace(name)
		return nil
	})
	if err != nil {
		return Reply{}, fmt.Errorf("update session: %w", err)
	}
	return emailPrompt(sess.CustomerName), nil
}

func (m *Machine) setEmail(ctx context.Context, userID int64, email string) (Reply, error) {
	if !ValidEmail(email) {
		return invalidEmailReply(), nil
	}
	sess, err := m.sessions.Update(ctx, userID, func(s *OrderSession) error {
		if s.Step != StepContactInfo || s.CustomerEmail != "" {
			return fmt.Errorf("unexpected step %s", s.Step)
		}
		s.CustomerEmail = strings.ToLower(strings.TrimSpace(email))
		return nil
	})
	if err != nil {
		return Reply{}, fmt.Errorf("update session: %w", err)
	}
	return phonePrompt(sess.CustomerEmail), nil
}

func (m *Machine) setPhone(ctx context.Context, userID int64, phone string) (Reply, error) {
	if !ValidPhone(phone) {
		return invalidPhoneReply(), nil
	}
	sess, err := m.sessions.Update(ctx, userID, func(s *OrderSession) error {
		if s.Step != StepContactInfo || s.PhoneStatus != PhoneUnset {
			return fmt.Errorf("unexpected step %s", s.Step)
		}
		s.CustomerPhone = strings.TrimSpace(phone)
		s.PhoneStatus = PhoneProvided
		s.Step = StepFileUpload
		return nil
	})
	if err != nil {
		return Reply{}, fmt.Errorf("update session: %w", err)
	}
	return fileUploadPrompt(sess), nil
}

func (m *Machine) skipPhone(ctx context.Context, userID int64) (Reply, error) {
	sess, err := m.sessions.Update(ctx, userID, func(s *OrderSession) error {
		if s.Step != StepContactInfo || s.CustomerName == "" || s.CustomerEmail == "" {
			return fmt.Errorf("phone skip before name/email")
		}
		s.CustomerPhone = ""
		s.PhoneStatus = PhoneSkipped
		s.Step = StepFileUpload
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return noSessionReply(), nil
		}
		m.logger.Debug("phone skip rejected", zap.Int64("user_id", userID), zap.Error(err))
		return guidanceReply(StepContactInfo), nil
	}
	return fileUploadPrompt(sess), nil
}

func (m *Machine) fileUploaded(ctx context.Context, userID int64, file FileRef) (Reply, error) {
	// Format and size are checked before any session is touched, so a
	// rejected file never mutates state.
	if outcome := CheckFile(file); outcome != OutcomeOK {
		return fileRejectedReply(file, outcome), nil
	}

	sess, err := m.sessions.Get(ctx, userID)
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		return Reply{}, fmt.Errorf("get session: %w", err)
	}
	if err != nil || sess.Step != StepFileUpload {
		// File outside an upload step: acknowledge, do not store.
		return standaloneFileReply(file), nil
	}

	sess, err = m.sessions.Update(ctx, userID, func(s *OrderSession) error {
		if s.Step != StepFileUpload {
			return fmt.Errorf("unexpected step %s", s.Step)
		}
		s.Files = append(s.Files, file)
		return nil
	})
	if err != nil {
		return Reply{}, fmt.Errorf("update session: %w", err)
	}

	m.logger.Info("file attached to order",
		zap.Int64("user_id", userID),
		zap.String("filename", file.Name),
		zap.Int64("size", file.Size))
	return fileAcceptedReply(file, len(sess.Files)), nil
}

func (m *Machine) removeLastFile(ctx context.Context, userID int64) (Reply, error) {
	sess, err := m.sessions.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return noSessionReply(), nil
		}
		return Reply{}, fmt.Errorf("get session: %w", err)
	}
	if len(sess.Files) == 0 {
		return nothingToRemoveReply(), nil
	}

	var removed FileRef
	sess, err = m.sessions.Update(ctx, userID, func(s *OrderSession) error {
		if len(s.Files) == 0 {
			return fmt.Errorf("no files to remove")
		}
		removed = s.Files[len(s.Files)-1]
		s.Files = s.Files[:len(s.Files)-1]
		return nil
	})
	if err != nil {
		return Reply{}, fmt.Errorf("update session: %w", err)
	}
	return fileRemovedReply(removed, len(sess.Files)), nil
}

func (m *Machine) continueToSpecs(ctx context.Context, userID int64) (Reply, error) {
	_, err := m.sessions.Update(ctx, userID, func(s *OrderSession) error {
		if s.Step != StepFileUpload {
			return fmt.Errorf("unexpected step %s", s.Step)
		}
		s.Step = StepSpecifications
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return noSessionReply(), nil
		}
		return guidanceReply(StepFileUpload), nil
	}
	return materialPrompt(), nil
}

func (m *Machine) selectMaterial(ctx context.Context, userID int64, material string) (Reply, error) {
	if !ValidMaterial(material) {
		return Reply{Text: msgUnknownOption, Outcome: OutcomeInvalidSelection, Keyboard: materialKeyboard()}, nil
	}
	_, err := m.sessions.Update(ctx, userID, func(s *OrderSession) error {
		if s.Step != StepSpecifications {
			return fmt.Errorf("unexpected step %s", s.Step)
		}
		s.Specs.Material = material
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return noSessionReply(), nil
		}
		return guidanceReply(StepSpecifications), nil
	}
	return qualityPrompt(material), nil
}

func (m *Machine) selectQuality(ctx context.Context, userID int64, quality string) (Reply, error) {
	if !ValidQuality(quality) {
		return Reply{Text: msgUnknownOption, Outcome: OutcomeInvalidSelection, Keyboard: qualityKeyboard()}, nil
	}
	_, err := m.sessions.Update(ctx, userID, func(s *OrderSession) error {
		if s.Step != StepSpecifications || s.Specs.Material == "" {
			return fmt.Errorf("quality before material")
		}
		s.Specs.Quality = quality
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return noSessionReply(), nil
		}
		return guidanceReply(StepSpecifications), nil
	}
	return infillPrompt(quality), nil
}

func (m *Machine) selectInfill(ctx context.Context, userID int64, infill int) (Reply, error) {
	if !ValidInfill(infill) {
		return Reply{Text: msgUnknownOption, Outcome: OutcomeInvalidSelection, Keyboard: infillKeyboard()}, nil
	}
	_, err := m.sessions.Update(ctx, userID, func(s *OrderSession) error {
		if s.Step != StepSpecifications || s.Specs.Material == "" || s.Specs.Quality == "" {
			return fmt.Errorf("infill before material/quality")
		}
		s.Specs.Infill = infill
		s.Step = StepDelivery
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return noSessionReply(), nil
		}
		return guidanceReply(StepSpecifications), nil
	}
	return deliveryPrompt(), nil
}

func (m *Machine) chooseDelivery(ctx context.Context, userID int64, shipping bool) (Reply, error) {
	sess, err := m.sessions.Update(ctx, userID, func(s *OrderSession) error {
		if s.Step != StepDelivery {
			return fmt.Errorf("unexpected step %s", s.Step)
		}
		needed := shipping
		s.DeliveryNeeded = &needed
		if !shipping {
			s.DeliveryAddress = ""
			enterConfirmation(s)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return noSessionReply(), nil
		}
		return guidanceReply(StepDelivery), nil
	}
	if shipping {
		return addressPrompt(), nil
	}
	return summaryReply(sess), nil
}

func (m *Machine) deliveryAddress(ctx context.Context, userID int64, text string) (Reply, error) {
	address := strings.TrimSpace(text)
	if len([]rune(address)) < 5 {
		return invalidAddressReply(), nil
	}
	sess, err := m.sessions.Update(ctx, userID, func(s *OrderSession) error {
		if s.Step != StepDelivery || s.DeliveryNeeded == nil || !*s.DeliveryNeeded {
			return fmt.Errorf("address without shipping chosen")
		}
		s.DeliveryAddress = address
		enterConfirmation(s)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return noSessionReply(), nil
		}
		return guidanceReply(StepDelivery), nil
	}
	return summaryReply(sess), nil
}

func (m *Machine) confirm(ctx context.Context, userID int64) (Reply, error) {
	sess, err := m.sessions.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return noSessionReply(), nil
		}
		return Reply{}, fmt.Errorf("get session: %w", err)
	}
	if sess.Step != StepConfirmation {
		return guidanceReply(sess.Step), nil
	}
	if missing := sess.MissingField(); missing != "" {
		return incompleteOrderReply(missing), nil
	}

	// Submission happens without holding the session: on failure the
	// session is still at CONFIRMATION and Confirm can be retried with
	// the same submission key.
	ref, err := m.gateway.SubmitOrder(ctx, sess.Payload(), sess.SubmissionKey)
	if err != nil {
		m.logger.Error("order submission failed",
			zap.Int64("user_id", userID),
			zap.Int("service_id", sess.ServiceID),
			zap.Error(err))
		return submissionFailedReply(err), nil
	}

	if _, err := m.sessions.Update(ctx, userID, func(s *OrderSession) error {
		s.Step = StepSubmitted
		return nil
	}); err != nil && !errors.Is(err, ErrSessionNotFound) {
		m.logger.Warn("failed to mark session submitted", zap.Int64("user_id", userID), zap.Error(err))
	}
	if _, err := m.sessions.Clear(ctx, userID); err != nil {
		m.logger.Warn("failed to clear submitted session", zap.Int64("user_id", userID), zap.Error(err))
	}

	m.logger.Info("order submitted",
		zap.Int64("user_id", userID),
		zap.Int64("order_id", ref.ID),
		zap.Int("service_id", sess.ServiceID))
	return submittedReply(ref.ID, sess), nil
}

func (m *Machine) navigateBack(ctx context.Context, userID int64, target Step) (Reply, error) {
	sess, err := m.sessions.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return noSessionReply(), nil
		}
		return Reply{}, fmt.Errorf("get session: %w", err)
	}

	if target == StepConfirmation {
		if missing := sess.MissingField(); missing != "" {
			return incompleteOrderReply(missing), nil
		}
		sess, err = m.sessions.Update(ctx, userID, func(s *OrderSession) error {
			enterConfirmation(s)
			return nil
		})
		if err != nil {
			return Reply{}, fmt.Errorf("update session: %w", err)
		}
		return summaryReply(sess), nil
	}

	rank, ok := stepRank[target]
	if !ok || rank > stepRank[sess.Step] {
		return guidanceReply(sess.Step), nil
	}

	if target == StepServiceSelection {
		services, err := m.gateway.ListServices(ctx, true)
		if err != nil {
			return upstreamReply(err), nil
		}
		if _, err := m.sessions.Update(ctx, userID, func(s *OrderSession) error {
			s.Step = StepServiceSelection
			return nil
		}); err != nil {
			return Reply{}, fmt.Errorf("update session: %w", err)
		}
		return catalogReply(services, OutcomeOK), nil
	}

	sess, err = m.sessions.Update(ctx, userID, func(s *OrderSession) error {
		s.Step = target
		// Fields owned by the revisited step are collected anew;
		// everything gathered for later steps stays.
		switch target {
		case StepContactInfo:
			enterContactInfo(s)
		case StepSpecifications:
			s.Specs = Specifications{}
		case StepDelivery:
			s.DeliveryNeeded = nil
			s.DeliveryAddress = ""
		}
		return nil
	})
	if err != nil {
		return Reply{}, fmt.Errorf("update session: %w", err)
	}

	switch target {
	case StepContactInfo:
		return namePrompt(sess.ServiceName), nil
	case StepFileUpload:
		return fileUploadPrompt(sess), nil
	case StepSpecifications:
		return materialPrompt(), nil
	case StepDelivery:
		return deliveryPrompt(), nil
	}
	return guidanceReply(sess.Step), nil
}

func (m *Machine) showEditMenu(ctx context.Context, userID int64) (Reply, error) {
	sess, err := m.sessions.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return noSessionReply(), nil
		}
		return Reply{}, fmt.Errorf("get session: %w", err)
	}
	if sess.Step != StepConfirmation {
		return guidanceReply(sess.Step), nil
	}
	return editMenuReply(), nil
}

func (m *Machine) cancel(ctx context.Context, userID int64) (Reply, error) {
	existed, err := m.sessions.Clear(ctx, userID)
	if err != nil {
		return Reply{}, fmt.Errorf("clear session: %w", err)
	}
	if !existed {
		return nothingToCancelReply(), nil
	}
	m.logger.Info("order cancelled", zap.Int64("user_id", userID))
	return cancelledReply(), nil
}

// enterConfirmation starts a new confirmation attempt. The fresh key
// survives failed Confirm retries (they do not re-enter the step) and
// changes only when the order is edited and confirmed again.
func enterConfirmation(s *OrderSession) {
	s.Step = StepConfirmation
	s.SubmissionKey = uuid.NewString()
}

// enterContactInfo re-opens contact collection: the step's own fields
// become editable (unset) again.
func enterContactInfo(s *OrderSession) {
	s.Step = StepContactInfo
	s.CustomerName = ""
	s.CustomerEmail = ""
	s.CustomerPhone = ""
	s.PhoneStatus = PhoneUnset
}

func isSkipWord(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "skip", "пропустить":
		return true
	}
	return false
}
