package controller

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/cvfill/api/schemas"
	"github.com/xkilldash9x/cvfill/internal/autofill/profile"
	"github.com/xkilldash9x/cvfill/internal/browser/memdoc"
	"github.com/xkilldash9x/cvfill/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const janePage = `
<html><body>
<form id="apply">
	<input name="first_name">
	<input name="email" type="email">
	<input name="phone" type="tel">
	<input name="company">
</form>
</body></html>`

const janeProfile = `{
	"personal_info": {"full_name": "Jane Doe", "email": "jane@x.com", "phone": "+1-555-0100"},
	"experience": [{"company": "Acme"}]
}`

func fixedClock() time.Time { return time.Date(2024, time.March, 9, 10, 0, 0, 0, time.UTC) }

type harness struct {
	doc  *memdoc.Document
	ctrl *Controller
}

func newHarness(t *testing.T, page string, mutate func(*config.AutofillConfig), opts ...Option) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	doc, err := memdoc.Parse(strings.NewReader(page), "https://jobs.example.com/apply", logger)
	require.NoError(t, err)

	cfg := config.NewDefaultConfig().Autofill()
	if mutate != nil {
		mutate(&cfg)
	}
	opts = append([]Option{WithResolver(profile.NewResolver(logger, profile.WithClock(fixedClock)))}, opts...)
	ctrl := New(doc, cfg, logger, opts...)

	t.Cleanup(func() {
		ctrl.Close()
		doc.Close()
	})
	return &harness{doc: doc, ctrl: ctrl}
}

func (h *harness) handle(t *testing.T, req schemas.Request) *schemas.Response {
	t.Helper()
	resp := h.ctrl.Handle(context.Background(), &req)
	require.NotNil(t, resp)
	assert.Equal(t, StateIdle, h.ctrl.State())
	return resp
}

func boolPtr(b bool) *bool { return &b }

func TestAutoFill_JaneScenario(t *testing.T) {
	h := newHarness(t, janePage, nil)

	resp := h.handle(t, schemas.Request{Action: schemas.ActionDetectForms})
	require.True(t, resp.Success)
	require.NotNil(t, resp.FormsCount)
	assert.Equal(t, 1, *resp.FormsCount)
	require.Len(t, resp.Forms, 1)
	assert.Len(t, resp.Forms[0].Fields, 4)

	resp = h.handle(t, schemas.Request{Action: schemas.ActionAutoFill, CVData: json.RawMessage(janeProfile)})
	require.True(t, resp.Success, resp.Message)
	require.NotNil(t, resp.FieldsFilled)
	assert.Equal(t, 4, *resp.FieldsFilled)
	assert.Equal(t, "Filled 4 fields", resp.Message)

	assert.Equal(t, "Jane", h.doc.Value(`/html[1]/body[1]/form[1]/input[1]`))
	assert.Equal(t, "jane@x.com", h.doc.Value(`/html[1]/body[1]/form[1]/input[2]`))
	assert.Equal(t, "+1-555-0100", h.doc.Value(`/html[1]/body[1]/form[1]/input[3]`))
	assert.Equal(t, "Acme", h.doc.Value(`/html[1]/body[1]/form[1]/input[4]`))
}

func TestAutoFill_EventsFollowEveryWrite(t *testing.T) {
	h := newHarness(t, janePage, nil)
	h.handle(t, schemas.Request{Action: schemas.ActionAutoFill, CVData: json.RawMessage(janeProfile)})

	events := h.doc.Events()
	require.Len(t, events, 8)
	for i := 0; i < len(events); i += 2 {
		assert.Equal(t, "input", events[i].Type)
		assert.Equal(t, "change", events[i+1].Type)
		assert.Equal(t, events[i].Selector, events[i+1].Selector)
	}
}

func TestAutoFill_SingleTokenName(t *testing.T) {
	h := newHarness(t, `<form><input name="first_name"><input name="last_name"></form>`, nil)

	resp := h.handle(t, schemas.Request{
		Action: schemas.ActionAutoFill,
		CVData: json.RawMessage(`{"personal_info":{"full_name":"Madonna"}}`),
	})
	require.True(t, resp.Success)
	assert.Equal(t, 1, *resp.FieldsFilled)
	assert.Equal(t, "Madonna", h.doc.Value(`//input[@name='first_name']`))

	_, touched := h.doc.Attr(`//input[@name='last_name']`, "value")
	assert.False(t, touched, "the last name field is left unwritten")
	for _, ev := range h.doc.Events() {
		assert.NotContains(t, ev.Selector, "input[2]")
	}
}

func TestAutoFill_Dates(t *testing.T) {
	h := newHarness(t, `<form>
		<label for="sd">Start Date</label><input type="date" id="sd" name="start">
		<input type="date" name="date">
	</form>`, nil)

	resp := h.handle(t, schemas.Request{
		Action: schemas.ActionAutoFill,
		CVData: json.RawMessage(`{"experience":[{"start_date":"2020-01-01"}]}`),
	})
	require.True(t, resp.Success)
	assert.Equal(t, 2, *resp.FieldsFilled)
	assert.Equal(t, "2020-01-01", h.doc.Value(`//*[@id='sd']`))
	assert.Equal(t, "2024-03-09", h.doc.Value(`//input[@name='date']`))
}

func TestAutoFill_SelectSubstringMatch(t *testing.T) {
	h := newHarness(t, `<form><select name="country">
		<option>United States</option>
		<option>Canada</option>
	</select></form>`, nil)

	resp := h.handle(t, schemas.Request{
		Action: schemas.ActionAutoFill,
		CVData: json.RawMessage(`{"personal_info":{"country":"canada"}}`),
	})
	require.True(t, resp.Success)
	assert.Equal(t, 1, *resp.FieldsFilled)
	assert.Equal(t, 1, h.doc.SelectedIndex(`//select[@name='country']`))
}

func TestAutoFill_RadioGroupCountsOnce(t *testing.T) {
	h := newHarness(t, `<form>
		<input type="radio" name="work_authorization" value="Citizen">
		<input type="radio" name="work_authorization" value="Visa">
	</form>`, nil)

	resp := h.handle(t, schemas.Request{
		Action: schemas.ActionAutoFill,
		CVData: json.RawMessage(`{"preferences":{"work_authorization":"visa"}}`),
	})
	require.True(t, resp.Success)
	assert.Equal(t, 1, *resp.FieldsFilled)
	_, checked := h.doc.Attr(`//input[@value='Visa']`, "checked")
	assert.True(t, checked)
	assert.Equal(t, "Filled 1 field", resp.Message)
}

func TestAutoFill_EmptyProfileAndNoForms(t *testing.T) {
	h := newHarness(t, janePage, nil)
	resp := h.handle(t, schemas.Request{Action: schemas.ActionAutoFill, CVData: json.RawMessage(`{}`)})
	require.True(t, resp.Success)
	assert.Equal(t, 0, *resp.FieldsFilled)
	assert.Empty(t, h.doc.Events())

	h = newHarness(t, `<html><body><p>No forms here.</p></body></html>`, nil)
	resp = h.handle(t, schemas.Request{Action: schemas.ActionAutoFill, CVData: json.RawMessage(janeProfile)})
	require.True(t, resp.Success)
	assert.Equal(t, 0, *resp.FieldsFilled)
	assert.Equal(t, "No forms detected", resp.Message)
}

func TestAutoFill_PayloadErrors(t *testing.T) {
	h := newHarness(t, janePage, nil)

	resp := h.handle(t, schemas.Request{Action: schemas.ActionAutoFill})
	assert.False(t, resp.Success)
	assert.Equal(t, schemas.ErrCodeNoData, resp.Code)
	require.NotNil(t, resp.FieldsFilled)
	assert.Equal(t, 0, *resp.FieldsFilled)

	resp = h.handle(t, schemas.Request{Action: schemas.ActionAutoFill, CVData: json.RawMessage(`"just a string"`)})
	assert.False(t, resp.Success)
	assert.Equal(t, schemas.ErrCodeInvalidParameters, resp.Code)
}

func TestPerformFill(t *testing.T) {
	h := newHarness(t, janePage, nil)

	resp := h.handle(t, schemas.Request{Action: schemas.ActionPerformFill, FormData: json.RawMessage(janeProfile)})
	assert.False(t, resp.Success)
	assert.Equal(t, schemas.ErrCodeNoForms, resp.Code)
	assert.NotEmpty(t, resp.Message)
	require.NotNil(t, resp.FieldsFilled)
	assert.Equal(t, 0, *resp.FieldsFilled)

	h.handle(t, schemas.Request{Action: schemas.ActionDetectForms, Highlight: boolPtr(false)})

	resp = h.handle(t, schemas.Request{Action: schemas.ActionPerformFill})
	assert.False(t, resp.Success)
	assert.Equal(t, schemas.ErrCodeNoData, resp.Code)
	require.NotNil(t, resp.FieldsFilled)
	assert.Equal(t, 0, *resp.FieldsFilled)

	resp = h.handle(t, schemas.Request{Action: schemas.ActionPerformFill, FormData: json.RawMessage(janeProfile)})
	require.True(t, resp.Success)
	assert.Equal(t, 4, *resp.FieldsFilled)
}

func TestDetectForms_EmptyPageListsNoForms(t *testing.T) {
	h := newHarness(t, `<html><body><p>No forms here.</p></body></html>`, nil)
	resp := h.handle(t, schemas.Request{Action: schemas.ActionDetectForms, RequestID: "r1"})
	require.True(t, resp.Success)

	out, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"requestId":"r1","success":true,"forms":[],"formsCount":0}`, string(out))
}

func TestReset(t *testing.T) {
	var mu sync.Mutex
	var updates []schemas.FormsUpdate
	h := newHarness(t, janePage, func(c *config.AutofillConfig) { c.OverlayDuration = time.Hour }, WithScanListener(func(u schemas.FormsUpdate) {
		mu.Lock()
		defer mu.Unlock()
		updates = append(updates, u)
	}))

	h.handle(t, schemas.Request{Action: schemas.ActionDetectForms})
	require.Equal(t, 1, h.ctrl.Registry().Len())

	h.ctrl.Reset()
	assert.Zero(t, h.ctrl.Registry().Len())

	resp := h.handle(t, schemas.Request{Action: schemas.ActionCheckForForms})
	assert.False(t, *resp.FormsFound)

	resp = h.handle(t, schemas.Request{Action: schemas.ActionPerformFill, CVData: json.RawMessage(janeProfile)})
	assert.Equal(t, schemas.ErrCodeNoForms, resp.Code)
	assert.Empty(t, h.doc.Events(), "no writes after the forms were forgotten")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, updates, 2)
	assert.Equal(t, "formsUpdated", updates[1].Type)
	assert.Zero(t, updates[1].FormsCount)
	assert.Empty(t, updates[1].Forms)
}

func TestCheckForForms(t *testing.T) {
	h := newHarness(t, janePage, nil)

	resp := h.handle(t, schemas.Request{Action: schemas.ActionCheckForForms})
	require.NotNil(t, resp.FormsFound)
	assert.False(t, *resp.FormsFound, "nothing is known before the first scan")

	h.handle(t, schemas.Request{Action: schemas.ActionDetectForms, Highlight: boolPtr(false)})
	resp = h.handle(t, schemas.Request{Action: schemas.ActionCheckForForms})
	assert.True(t, *resp.FormsFound)
}

func TestDetectForms_OverlaysAutoClear(t *testing.T) {
	h := newHarness(t, janePage, func(c *config.AutofillConfig) { c.OverlayDuration = 20 * time.Millisecond })

	h.handle(t, schemas.Request{Action: schemas.ActionDetectForms})
	_, shown := h.doc.Attr(`//*[@id='apply']`, memdoc.OverlayAttr)
	assert.True(t, shown)

	assert.Eventually(t, func() bool {
		_, shown := h.doc.Attr(`//*[@id='apply']`, memdoc.OverlayAttr)
		return !shown
	}, time.Second, 5*time.Millisecond)
}

func TestDetectForms_PersistedOverlaysStay(t *testing.T) {
	h := newHarness(t, janePage, func(c *config.AutofillConfig) { c.OverlayDuration = 10 * time.Millisecond })

	h.handle(t, schemas.Request{Action: schemas.ActionDetectForms, PersistHighlights: boolPtr(true)})
	time.Sleep(50 * time.Millisecond)
	_, shown := h.doc.Attr(`//*[@id='apply']`, memdoc.OverlayAttr)
	assert.True(t, shown)

	resp := h.handle(t, schemas.Request{Action: schemas.ActionClearHighlightsAndFill, CVData: json.RawMessage(janeProfile)})
	require.True(t, resp.Success)
	assert.Equal(t, 4, *resp.FieldsFilled)
	_, shown = h.doc.Attr(`//*[@id='apply']`, memdoc.OverlayAttr)
	assert.False(t, shown)
}

func TestHandle_UnknownAction(t *testing.T) {
	h := newHarness(t, janePage, nil)
	resp := h.handle(t, schemas.Request{Action: "selfDestruct", RequestID: "r-1"})
	assert.False(t, resp.Success)
	assert.Equal(t, "Unknown action", resp.Message)
	assert.Equal(t, "r-1", resp.RequestID)

	assert.Equal(t, schemas.ErrCodeInvalidParameters, h.ctrl.Handle(context.Background(), nil).Code)
}

func TestHandle_ExcludedSite(t *testing.T) {
	h := newHarness(t, janePage, func(c *config.AutofillConfig) { c.ExcludedSites = []string{"example.com"} })

	resp := h.handle(t, schemas.Request{Action: schemas.ActionAutoFill, CVData: json.RawMessage(janeProfile)})
	assert.False(t, resp.Success)
	assert.Equal(t, schemas.ErrCodeSiteExcluded, resp.Code)
	assert.Empty(t, h.doc.Events())

	resp = h.handle(t, schemas.Request{Action: schemas.ActionDetectForms, Highlight: boolPtr(false)})
	assert.True(t, resp.Success, "detection is still allowed")
}

func TestHostOf(t *testing.T) {
	assert.Equal(t, "jobs.example.com", hostOf("https://Jobs.Example.com:8443/x"))
	assert.Equal(t, "", hostOf("about:blank"))
	assert.Equal(t, "", hostOf("::"))
}

func TestGenerateMappings(t *testing.T) {
	h := newHarness(t, janePage, nil)

	resp := h.handle(t, schemas.Request{
		Action: schemas.ActionGenerateMappings,
		CVData: json.RawMessage(janeProfile),
		FormFields: []schemas.FieldDescriptor{
			{Name: "first_name"},
			{Name: "email", Type: "email"},
			{Name: "favorite_color"},
			{Name: "", ID: "linkedin"},
		},
	})
	require.True(t, resp.Success)
	assert.Equal(t, 4, *resp.TotalFields)
	assert.Equal(t, 2, *resp.MappedFields)
	assert.Equal(t, []string{"favorite_color", "linkedin"}, resp.UnmappedFields)

	require.Len(t, resp.Mappings, 2)
	assert.Equal(t, schemas.FieldMapping{FieldName: "first_name", Classification: "first_name", CVPath: "full_name (split)", Value: "Jane"}, resp.Mappings[0])
	assert.Equal(t, "personal_info.email", resp.Mappings[1].CVPath)

	assert.Empty(t, h.doc.Events(), "mappings never touch the page")

	resp = h.handle(t, schemas.Request{Action: schemas.ActionGenerateMappings, CVData: json.RawMessage(janeProfile)})
	assert.Equal(t, schemas.ErrCodeInvalidParameters, resp.Code)
}

func TestScanListenerAndRescan(t *testing.T) {
	var mu sync.Mutex
	var updates []schemas.FormsUpdate
	h := newHarness(t, janePage, nil, WithScanListener(func(u schemas.FormsUpdate) {
		mu.Lock()
		defer mu.Unlock()
		updates = append(updates, u)
	}))

	require.NoError(t, h.ctrl.Rescan(context.Background()))
	require.NoError(t, h.ctrl.Rescan(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, updates, 2)
	assert.Equal(t, "formsUpdated", updates[0].Type)
	assert.Equal(t, 1, updates[0].FormsCount)
	assert.NotEqual(t, updates[0].ScanID, updates[1].ScanID)

	_, scanID := h.ctrl.Registry().Snapshot()
	assert.Equal(t, updates[1].ScanID, scanID)
}

func TestFill(t *testing.T) {
	h := newHarness(t, janePage, nil)
	rec, err := profile.Decode([]byte(janeProfile))
	require.NoError(t, err)

	_, err = h.ctrl.Fill(context.Background(), rec)
	assert.ErrorIs(t, err, ErrNoForms)

	require.NoError(t, h.ctrl.Rescan(context.Background()))
	n, err := h.ctrl.Fill(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "writing", StateWriting.String())
	assert.Equal(t, "State(42)", State(42).String())
}
