package order

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nordlayer-bot/pkg/api"
)

type fakeGateway struct {
	services   []api.Service
	listErr    error
	submitErr  error
	submitted  []api.OrderPayload
	submitKeys []string
	nextID     int64
}

func (g *fakeGateway) ListServices(_ context.Context, _ bool) ([]api.Service, error) {
	if g.listErr != nil {
		return nil, g.listErr
	}
	return g.services, nil
}

func (g *fakeGateway) SubmitOrder(_ context.Context, p api.OrderPayload, idempotencyKey string) (*api.OrderRef, error) {
	g.submitKeys = append(g.submitKeys, idempotencyKey)
	if g.submitErr != nil {
		return nil, g.submitErr
	}
	g.submitted = append(g.submitted, p)
	if g.nextID == 0 {
		g.nextID = 1
	}
	return &api.OrderRef{ID: g.nextID, Status: "new"}, nil
}

func newTestMachine(gw *fakeGateway) (*Machine, *MemoryStore) {
	store := NewMemoryStore()
	return NewMachine(store, gw, zap.NewNop()), store
}

func defaultGateway() *fakeGateway {
	return &fakeGateway{
		services: []api.Service{
			{ID: 5, Name: "3D-печать", IsActive: true},
			{ID: 7, Name: "Моделирование", IsActive: true},
		},
		nextID: 42,
	}
}

const testUser int64 = 100500

func handle(t *testing.T, m *Machine, ev Event) Reply {
	t.Helper()
	reply, err := m.Handle(context.Background(), testUser, ev)
	require.NoError(t, err)
	return reply
}

// driveToConfirmation walks the happy path up to the summary screen.
func driveToConfirmation(t *testing.T, m *Machine) {
	t.Helper()
	handle(t, m, StartOrder{})
	handle(t, m, SelectService{ID: 5})
	handle(t, m, ContactText{Text: "Ann"})
	handle(t, m, ContactText{Text: "ann@x.com"})
	handle(t, m, SkipPhone{})
	handle(t, m, ContinueToSpecs{})
	handle(t, m, SelectMaterial{Material: "petg"})
	handle(t, m, SelectQuality{Quality: "standard"})
	handle(t, m, SelectInfill{Infill: 30})
	handle(t, m, ChooseDelivery{Shipping: false})
}

func TestHappyPathToFileUpload(t *testing.T) {
	m, store := newTestMachine(defaultGateway())

	reply := handle(t, m, StartOrder{})
	assert.Equal(t, OutcomeOK, reply.Outcome)
	assert.Contains(t, reply.Text, "3D-печать")

	reply = handle(t, m, SelectService{ID: 5})
	assert.Equal(t, OutcomeOK, reply.Outcome)

	reply = handle(t, m, ContactText{Text: "Ann"})
	assert.Equal(t, OutcomeOK, reply.Outcome)
	assert.Contains(t, reply.Text, "Ann")

	reply = handle(t, m, ContactText{Text: "ann@x.com"})
	assert.Equal(t, OutcomeOK, reply.Outcome)

	reply = handle(t, m, SkipPhone{})
	assert.Equal(t, OutcomeOK, reply.Outcome)

	sess, err := store.Get(context.Background(), testUser)
	require.NoError(t, err)
	assert.Equal(t, StepFileUpload, sess.Step)
	assert.Equal(t, "Ann", sess.CustomerName)
	assert.Equal(t, "ann@x.com", sess.CustomerEmail)
	assert.Equal(t, PhoneSkipped, sess.PhoneStatus)
	assert.Equal(t, 5, sess.ServiceID)
}

func TestFullOrderSubmission(t *testing.T) {
	gw := defaultGateway()
	m, store := newTestMachine(gw)

	driveToConfirmation(t, m)

	sess, err := store.Get(context.Background(), testUser)
	require.NoError(t, err)
	assert.Equal(t, StepConfirmation, sess.Step)
	assert.Empty(t, sess.MissingField())

	reply := handle(t, m, Confirm{})
	assert.Equal(t, OutcomeSubmitted, reply.Outcome)
	assert.Contains(t, reply.Text, "№42")

	require.Len(t, gw.submitted, 1)
	p := gw.submitted[0]
	assert.Equal(t, "Ann", p.CustomerName)
	assert.Equal(t, "ann@x.com", p.CustomerEmail)
	assert.Equal(t, "ann@x.com", p.CustomerContact)
	assert.Empty(t, p.CustomerPhone)
	assert.Equal(t, 5, p.ServiceID)
	assert.Equal(t, "TELEGRAM", p.Source)
	assert.Equal(t, "false", p.DeliveryNeeded)
	assert.Equal(t, "petg", p.Specifications["material"])
	assert.Equal(t, 30, p.Specifications["infill"])
	assert.Equal(t, testUser, p.Specifications["bot_user_id"])

	// Session is gone after submission.
	_, err = store.Get(context.Background(), testUser)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestEmailNormalizedToLowercase(t *testing.T) {
	m, store := newTestMachine(defaultGateway())
	handle(t, m, StartOrder{})
	handle(t, m, SelectService{ID: 5})
	handle(t, m, ContactText{Text: "Ann"})
	handle(t, m, ContactText{Text: "Ann@Example.COM"})

	sess, err := store.Get(context.Background(), testUser)
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", sess.CustomerEmail)
}

func TestSkipWordInsteadOfPhone(t *testing.T) {
	m, store := newTestMachine(defaultGateway())
	handle(t, m, StartOrder{})
	handle(t, m, SelectService{ID: 5})
	handle(t, m, ContactText{Text: "Ann"})
	handle(t, m, ContactText{Text: "ann@x.com"})
	handle(t, m, ContactText{Text: "пропустить"})

	sess, err := store.Get(context.Background(), testUser)
	require.NoError(t, err)
	assert.Equal(t, PhoneSkipped, sess.PhoneStatus)
	assert.Equal(t, StepFileUpload, sess.Step)
}

func TestInvalidInputsDoNotAdvance(t *testing.T) {
	m, store := newTestMachine(defaultGateway())
	handle(t, m, StartOrder{})
	handle(t, m, SelectService{ID: 5})

	reply := handle(t, m, ContactText{Text: "A"})
	assert.Equal(t, OutcomeValidationError, reply.Outcome)

	handle(t, m, ContactText{Text: "Ann"})
	reply = handle(t, m, ContactText{Text: "not-an-email"})
	assert.Equal(t, OutcomeValidationError, reply.Outcome)

	handle(t, m, ContactText{Text: "ann@x.com"})
	reply = handle(t, m, ContactText{Text: "12"})
	assert.Equal(t, OutcomeValidationError, reply.Outcome)

	sess, err := store.Get(context.Background(), testUser)
	require.NoError(t, err)
	assert.Equal(t, StepContactInfo, sess.Step)
	assert.Equal(t, PhoneUnset, sess.PhoneStatus)
}

func TestStaleServiceSelectionShowsCatalogAgain(t *testing.T) {
	m, store := newTestMachine(defaultGateway())
	handle(t, m, StartOrder{})

	reply := handle(t, m, SelectService{ID: 999})
	assert.Equal(t, OutcomeInvalidSelection, reply.Outcome)
	assert.NotEmpty(t, reply.Keyboard)

	sess, err := store.Get(context.Background(), testUser)
	require.NoError(t, err)
	assert.Equal(t, StepServiceSelection, sess.Step)
}

func TestFileValidationBeforeMutation(t *testing.T) {
	m, store := newTestMachine(defaultGateway())
	handle(t, m, StartOrder{})
	handle(t, m, SelectService{ID: 5})
	handle(t, m, ContactText{Text: "Ann"})
	handle(t, m, ContactText{Text: "ann@x.com"})
	handle(t, m, SkipPhone{})

	reply := handle(t, m, FileUploaded{File: FileRef{Name: "photo.png", Size: 100}})
	assert.Equal(t, OutcomeUnsupportedFormat, reply.Outcome)

	reply = handle(t, m, FileUploaded{File: FileRef{Name: "big.stl", Size: MaxFileSize + 1}})
	assert.Equal(t, OutcomeFileTooLarge, reply.Outcome)

	sess, err := store.Get(context.Background(), testUser)
	require.NoError(t, err)
	assert.Empty(t, sess.Files)

	reply = handle(t, m, FileUploaded{File: FileRef{Name: "model.stl", Size: 1024}})
	assert.Equal(t, OutcomeOK, reply.Outcome)

	sess, err = store.Get(context.Background(), testUser)
	require.NoError(t, err)
	require.Len(t, sess.Files, 1)
	assert.Equal(t, "model.stl", sess.Files[0].Name)
}

func TestRemoveLastFileWhenEmpty(t *testing.T) {
	m, _ := newTestMachine(defaultGateway())
	handle(t, m, StartOrder{})
	handle(t, m, SelectService{ID: 5})
	handle(t, m, ContactText{Text: "Ann"})
	handle(t, m, ContactText{Text: "ann@x.com"})
	handle(t, m, SkipPhone{})

	reply := handle(t, m, RemoveLastFile{})
	assert.Equal(t, OutcomeNothingToRemove, reply.Outcome)
}

func TestFileOutsideUploadStepIsAcknowledgedOnly(t *testing.T) {
	m, store := newTestMachine(defaultGateway())
	handle(t, m, StartOrder{})

	reply := handle(t, m, FileUploaded{File: FileRef{Name: "model.stl", Size: 10}})
	assert.Equal(t, OutcomeOK, reply.Outcome)
	assert.Contains(t, reply.Text, "model.stl")

	sess, err := store.Get(context.Background(), testUser)
	require.NoError(t, err)
	assert.Empty(t, sess.Files)
	assert.Equal(t, StepServiceSelection, sess.Step)
}

func TestQualityRequiresMaterialFirst(t *testing.T) {
	m, store := newTestMachine(defaultGateway())
	handle(t, m, StartOrder{})
	handle(t, m, SelectService{ID: 5})
	handle(t, m, ContactText{Text: "Ann"})
	handle(t, m, ContactText{Text: "ann@x.com"})
	handle(t, m, SkipPhone{})
	handle(t, m, ContinueToSpecs{})

	reply := handle(t, m, SelectQuality{Quality: "high"})
	assert.Equal(t, OutcomeInvalidSelection, reply.Outcome)

	sess, err := store.Get(context.Background(), testUser)
	require.NoError(t, err)
	assert.Empty(t, sess.Specs.Quality)
}

func TestShippingRequiresAddress(t *testing.T) {
	m, store := newTestMachine(defaultGateway())
	handle(t, m, StartOrder{})
	handle(t, m, SelectService{ID: 5})
	handle(t, m, ContactText{Text: "Ann"})
	handle(t, m, ContactText{Text: "ann@x.com"})
	handle(t, m, SkipPhone{})
	handle(t, m, ContinueToSpecs{})
	handle(t, m, SelectMaterial{Material: "pla"})
	handle(t, m, SelectQuality{Quality: "draft"})
	handle(t, m, SelectInfill{Infill: 15})

	reply := handle(t, m, ChooseDelivery{Shipping: true})
	assert.Equal(t, OutcomeOK, reply.Outcome)

	sess, err := store.Get(context.Background(), testUser)
	require.NoError(t, err)
	assert.Equal(t, StepDelivery, sess.Step)

	reply = handle(t, m, DeliveryAddressText{Text: "ул"})
	assert.Equal(t, OutcomeValidationError, reply.Outcome)

	reply = handle(t, m, DeliveryAddressText{Text: "Москва, ул. Ленина, д. 1"})
	assert.Equal(t, OutcomeOK, reply.Outcome)

	sess, err = store.Get(context.Background(), testUser)
	require.NoError(t, err)
	assert.Equal(t, StepConfirmation, sess.Step)
	require.NotNil(t, sess.DeliveryNeeded)
	assert.True(t, *sess.DeliveryNeeded)
	assert.Equal(t, "Москва, ул. Ленина, д. 1", sess.DeliveryAddress)
}

func TestSubmissionFailureKeepsSessionRetryable(t *testing.T) {
	gw := defaultGateway()
	gw.submitErr = api.ErrUnavailable
	m, store := newTestMachine(gw)

	driveToConfirmation(t, m)

	reply := handle(t, m, Confirm{})
	assert.Equal(t, OutcomeSubmissionFailed, reply.Outcome)

	sess, err := store.Get(context.Background(), testUser)
	require.NoError(t, err)
	assert.Equal(t, StepConfirmation, sess.Step)
	assert.Equal(t, "Ann", sess.CustomerName)

	// Upstream recovers, retry succeeds.
	gw.submitErr = nil
	reply = handle(t, m, Confirm{})
	assert.Equal(t, OutcomeSubmitted, reply.Outcome)
	require.Len(t, gw.submitted, 1)

	// The retry is the same submission attempt upstream.
	require.Len(t, gw.submitKeys, 2)
	assert.NotEmpty(t, gw.submitKeys[0])
	assert.Equal(t, gw.submitKeys[0], gw.submitKeys[1])
}

func TestEditedOrderGetsNewSubmissionKey(t *testing.T) {
	gw := defaultGateway()
	gw.submitErr = api.ErrUnavailable
	m, _ := newTestMachine(gw)

	driveToConfirmation(t, m)
	handle(t, m, Confirm{})

	// Editing and re-confirming is a new attempt, not a retry.
	handle(t, m, NavigateBack{Target: StepDelivery})
	handle(t, m, ChooseDelivery{Shipping: false})
	handle(t, m, Confirm{})

	require.Len(t, gw.submitKeys, 2)
	assert.NotEqual(t, gw.submitKeys[0], gw.submitKeys[1])
}

func TestBackToSpecsClearsOnlySpecs(t *testing.T) {
	m, store := newTestMachine(defaultGateway())
	driveToConfirmation(t, m)

	reply := handle(t, m, NavigateBack{Target: StepSpecifications})
	assert.Equal(t, OutcomeOK, reply.Outcome)

	sess, err := store.Get(context.Background(), testUser)
	require.NoError(t, err)
	assert.Equal(t, StepSpecifications, sess.Step)
	assert.Empty(t, sess.Specs.Material)
	assert.Zero(t, sess.Specs.Infill)
	// Contacts survive the back navigation.
	assert.Equal(t, "Ann", sess.CustomerName)
	assert.Equal(t, "ann@x.com", sess.CustomerEmail)
}

func TestBackToContactsReopensContactCollection(t *testing.T) {
	m, store := newTestMachine(defaultGateway())
	driveToConfirmation(t, m)

	handle(t, m, NavigateBack{Target: StepContactInfo})

	sess, err := store.Get(context.Background(), testUser)
	require.NoError(t, err)
	assert.Equal(t, StepContactInfo, sess.Step)
	assert.Empty(t, sess.CustomerName)
	assert.Equal(t, PhoneUnset, sess.PhoneStatus)
	// The chosen service and specs are kept.
	assert.Equal(t, 5, sess.ServiceID)
	assert.Equal(t, "petg", sess.Specs.Material)
}

func TestReturnToConfirmationRequiresCompleteOrder(t *testing.T) {
	m, _ := newTestMachine(defaultGateway())
	driveToConfirmation(t, m)
	handle(t, m, NavigateBack{Target: StepSpecifications})

	reply := handle(t, m, NavigateBack{Target: StepConfirmation})
	assert.Equal(t, OutcomeValidationError, reply.Outcome)

	handle(t, m, SelectMaterial{Material: "abs"})
	handle(t, m, SelectQuality{Quality: "high"})
	handle(t, m, SelectInfill{Infill: 100})
	handle(t, m, ChooseDelivery{Shipping: false})

	reply = handle(t, m, Confirm{})
	assert.Equal(t, OutcomeSubmitted, reply.Outcome)
}

func TestEditFieldResolvesToOwningStep(t *testing.T) {
	m, store := newTestMachine(defaultGateway())
	driveToConfirmation(t, m)

	handle(t, m, EditField{Field: "delivery"})

	sess, err := store.Get(context.Background(), testUser)
	require.NoError(t, err)
	assert.Equal(t, StepDelivery, sess.Step)
	assert.Nil(t, sess.DeliveryNeeded)
}

func TestCancelRemovesSession(t *testing.T) {
	m, store := newTestMachine(defaultGateway())
	handle(t, m, StartOrder{})
	handle(t, m, SelectService{ID: 5})

	reply := handle(t, m, Cancel{})
	assert.Equal(t, OutcomeCancelled, reply.Outcome)

	_, err := store.Get(context.Background(), testUser)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	reply = handle(t, m, Cancel{})
	assert.Equal(t, OutcomeNoSession, reply.Outcome)
}

func TestRestartDiscardsPreviousSession(t *testing.T) {
	m, store := newTestMachine(defaultGateway())
	handle(t, m, StartOrder{})
	handle(t, m, SelectService{ID: 5})
	handle(t, m, ContactText{Text: "Ann"})

	handle(t, m, StartOrder{})

	sess, err := store.Get(context.Background(), testUser)
	require.NoError(t, err)
	assert.Equal(t, StepServiceSelection, sess.Step)
	assert.Empty(t, sess.CustomerName)
}

func TestEventsWithoutSession(t *testing.T) {
	m, _ := newTestMachine(defaultGateway())

	for _, ev := range []Event{
		SelectService{ID: 5},
		ContactText{Text: "Ann"},
		SkipPhone{},
		RemoveLastFile{},
		ContinueToSpecs{},
		Confirm{},
	} {
		reply := handle(t, m, ev)
		assert.Equal(t, OutcomeNoSession, reply.Outcome, "event %T", ev)
	}
}

func TestUpstreamErrorOnCatalog(t *testing.T) {
	gw := defaultGateway()
	gw.listErr = api.ErrUnavailable
	m, store := newTestMachine(gw)

	reply := handle(t, m, StartOrder{})
	assert.Equal(t, OutcomeUpstreamError, reply.Outcome)

	_, err := store.Get(context.Background(), testUser)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
