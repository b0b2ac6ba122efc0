package models

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlow_Validation(t *testing.T) {
	t.Parallel()

	validate := validator.New(validator.WithRequiredStructEnabled())

	valid := Flow{
		OrganizationID: "org-1",
		Name:           "Welcome",
		Status:         FlowStatusDraft,
		Trigger:        FlowTrigger{Type: "trigger:contact_created"},
	}

	tests := []struct {
		name  string
		edit  func(*Flow)
		field string
	}{
		{name: "valid", edit: func(*Flow) {}},
		{name: "missing organization", edit: func(f *Flow) { f.OrganizationID = "" }, field: "OrganizationID"},
		{name: "short name", edit: func(f *Flow) { f.Name = "ab" }, field: "Name"},
		{name: "unknown status", edit: func(f *Flow) { f.Status = "archived" }, field: "Status"},
		{name: "unknown reentry policy", edit: func(f *Flow) { f.Reentry.Policy = "sometimes" }, field: "Policy"},
		{name: "negative cooldown", edit: func(f *Flow) { f.Reentry.CooldownSeconds = -1 }, field: "CooldownSeconds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			flow := valid
			tt.edit(&flow)

			err := validate.Struct(flow)
			if tt.field == "" {
				require.NoError(t, err)

				return
			}

			var verrs validator.ValidationErrors
			require.ErrorAs(t, err, &verrs)
			assert.Equal(t, tt.field, verrs[0].Field())
		})
	}
}

func TestFlow_Runnable(t *testing.T) {
	t.Parallel()

	flow := &Flow{Status: FlowStatusActive, IsActive: true}
	assert.True(t, flow.Runnable())

	flow.IsActive = false
	assert.False(t, flow.Runnable())

	flow.IsActive, flow.Status = true, FlowStatusPaused
	assert.False(t, flow.Runnable())
}

func TestFlow_AllowsReentry(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	completed := now.Add(-time.Hour)
	prior := &ExecutionContext{Status: ExecutionStatusCompleted, CompletedAt: &completed}

	assert.True(t, (&Flow{}).AllowsReentry(prior, now), "always is the default")
	assert.False(t, (&Flow{Reentry: Reentry{Policy: ReentryNever}}).AllowsReentry(prior, now))

	cooldown := &Flow{Reentry: Reentry{Policy: ReentryCooldown, CooldownSeconds: 7200}}
	assert.False(t, cooldown.AllowsReentry(prior, now))
	assert.True(t, cooldown.AllowsReentry(prior, now.Add(time.Hour)))
}

func TestContact_Tags(t *testing.T) {
	t.Parallel()

	c := &Contact{}

	assert.True(t, c.AddTag("vip"))
	assert.False(t, c.AddTag("vip"))
	assert.True(t, c.HasTag("vip"))
	assert.True(t, c.RemoveTag("vip"))
	assert.False(t, c.RemoveTag("vip"))
	assert.Empty(t, c.Tags)

	c.SetField("plan", "gold")
	assert.Equal(t, "gold", c.TemplateData()["fields"].(map[string]any)["plan"])

	var missing *Contact
	assert.Empty(t, missing.TemplateData())
}

func TestExecutionStatus(t *testing.T) {
	t.Parallel()

	for _, s := range NonTerminalStatuses() {
		assert.False(t, s.Terminal(), s)
	}

	assert.True(t, ExecutionStatusCancelled.Terminal())
	assert.True(t, ExecutionStatusWaitingTimer.Waiting())
	assert.False(t, ExecutionStatusRunning.Waiting())
}

func TestWait(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	due := now.Add(time.Minute)
	w := &Wait{NodeID: "ask", Events: []EventKind{EventMessageReceived}, DueAt: &due}

	assert.True(t, w.Accepts(EventMessageReceived))
	assert.False(t, w.Accepts(EventButtonClick))
	assert.False(t, w.Expired(now))
	assert.True(t, w.Expired(due))

	var none *Wait
	assert.False(t, none.Accepts(EventMessageReceived))
	assert.False(t, none.Expired(now))
}

func TestExecutionContext_Merge(t *testing.T) {
	t.Parallel()

	ec := &ExecutionContext{}
	ec.Merge(nil)
	assert.Nil(t, ec.Variables)

	ec.Merge(map[string]any{"a": 1})
	ec.Merge(map[string]any{"a": 2, "b": "x"})
	assert.Equal(t, map[string]any{"a": 2, "b": "x"}, ec.Variables)
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ErrorKindUnhandledBranch, KindOf(fmt.Errorf("node ask: %w", ErrUnhandledBranch)))
	assert.Equal(t, ErrorKindSideEffectFailed, KindOf(fmt.Errorf("webhook: %w", ErrSideEffectFailed)))
	assert.Equal(t, ErrorKindStepLimitExceeded, KindOf(ErrStepLimitExceeded))
	assert.Equal(t, ErrorKindInternal, KindOf(errors.New("boom")))
}

func TestInboundEvent(t *testing.T) {
	t.Parallel()

	validate := validator.New(validator.WithRequiredStructEnabled())

	event := InboundEvent{
		Kind:           EventButtonClick,
		OrganizationID: "org-1",
		ContactID:      "c-1",
		ButtonText:     "Yes",
		Text:           "yes please",
	}
	require.NoError(t, validate.Struct(event))

	vars := event.Variables()
	assert.Equal(t, "button_click", vars["last_event"])
	assert.Equal(t, "Yes", vars["button_text"])
	assert.Equal(t, "yes please", vars["last_message"])
	assert.NotContains(t, vars, "payload")

	event.Kind = EventTimer
	assert.Error(t, validate.Struct(event), "timer events never come from outside")
}

func TestInboundEvent_Addressed(t *testing.T) {
	t.Parallel()

	assert.False(t, InboundEvent{ContactID: "c-1", ButtonText: "Yes"}.Addressed())
	assert.True(t, InboundEvent{FlowID: "confirm"}.Addressed())
	assert.True(t, InboundEvent{ExecutionID: "e-1"}.Addressed())
	assert.True(t, InboundEvent{NodeID: "ask"}.Addressed())
}

func TestScheduledResume_Claimable(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	s := &ScheduledResume{DueAt: now}

	assert.True(t, s.Claimable(now, time.Minute))
	assert.False(t, s.Claimable(now.Add(-time.Second), time.Minute))

	claimed := now.Add(-30 * time.Second)
	s.ClaimedAt = &claimed
	assert.False(t, s.Claimable(now, time.Minute))
	assert.True(t, s.Claimable(now.Add(30*time.Second), time.Minute))

	s.DeliveredAt = &now
	assert.False(t, s.Claimable(now.Add(time.Hour), time.Minute))
}
