package script

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/FUFSoB/cli-bot-discord/internal/definition"
	"github.com/FUFSoB/cli-bot-discord/internal/graph"
	"github.com/FUFSoB/cli-bot-discord/internal/scheduler"
	"github.com/FUFSoB/cli-bot-discord/internal/shellerr"
	"github.com/FUFSoB/cli-bot-discord/internal/sink"
	"github.com/FUFSoB/cli-bot-discord/pkg/cmd"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

const (
	aliceID   = "100000000000000001"
	channelID = "400000000000000002"
	messageID = "600000000000000002"
)

type harness struct {
	t   *testing.T
	fx  *graph.Fixture
	reg *cmd.Registry
	rec *sink.Recorder
	eng *Engine
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{t: t, fx: loadFixture(t), reg: cmd.NewRegistry(), rec: sink.NewRecorder()}
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	h.eng = New(h.reg, h.rec, opts...)
	return h
}

func (h *harness) define(text string) {
	h.t.Helper()
	d, err := definition.Parse(text, "test")
	require.NoError(h.t, err)
	require.NoError(h.t, h.reg.Register(NewDefined(d)))
}

func (h *harness) defineFile(path string) {
	h.t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(h.t, err)
	h.define(string(data))
}

func (h *harness) run(src string) Outcome {
	h.t.Helper()
	return h.eng.Execute(context.Background(), Invocation{
		Source:  src,
		Context: h.fx.Context,
		Index:   h.fx.Index(),
	})
}

// texts runs src, requires success and returns the output as text.
func (h *harness) texts(src string) []string {
	h.t.Helper()
	oc := h.run(src)
	require.NoError(h.t, oc.Err)
	return strs(flatten(oc.Output))
}

func TestExecuteDeliversReply(t *testing.T) {
	h := newHarness(t)
	oc := h.run("echo hello\necho world")
	require.NoError(t, oc.Err)

	sent := h.rec.Sent()
	require.Len(t, sent, 1)
	d := sent[0].Delivery
	assert.Equal(t, "hello\nworld", d.Content)
	assert.Equal(t, sink.Reply, d.Mode)
	require.NotNil(t, d.ReplyTo)
	assert.Equal(t, sink.Handle{ChannelID: channelID, MessageID: messageID}, *d.ReplyTo)
	require.Len(t, oc.Handles, 1)
	assert.Equal(t, sent[0].Handle, oc.Handles[0])
}

func TestExecuteHandlesIncludeSendAndReply(t *testing.T) {
	h := newHarness(t)
	oc := h.run("send now
echo later")
	require.NoError(t, oc.Err)

	sent := h.rec.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, []sink.Handle{sent[0].Handle, sent[1].Handle}, oc.Handles)
}

func TestExecuteNothingToDeliver(t *testing.T) {
	h := newHarness(t)
	oc := h.run("x=1")
	require.NoError(t, oc.Err)
	assert.Empty(t, h.rec.Sent())
}

func TestExecuteSyntaxError(t *testing.T) {
	h := newHarness(t)
	oc := h.run("if then fi (")
	require.Error(t, oc.Err)
	assert.True(t, shellerr.Is(oc.Err, shellerr.ScriptSyntaxError))
	assert.Empty(t, h.rec.Sent())
}

func TestUnknownCommand(t *testing.T) {
	h := newHarness(t)
	oc := h.run("echo before\nnosuch arg\necho after")
	require.Error(t, oc.Err)
	assert.True(t, shellerr.Is(oc.Err, shellerr.UnknownCommandError))
	assert.Contains(t, oc.Err.Error(), "nosuch: command not found")
	assert.False(t, oc.Handled)
	assert.Empty(t, h.rec.Sent(), "fatal errors drop the output")
}

func TestReturnOnError(t *testing.T) {
	h := newHarness(t)
	oc := h.run("params return_on_error\necho before\nnosuch\necho after")
	require.Error(t, oc.Err)
	assert.True(t, oc.Handled)
	assert.Equal(t, []string{"before"}, h.rec.Contents())
}

func TestParamsSendFalse(t *testing.T) {
	h := newHarness(t)
	oc := h.run("params send=false\necho quiet")
	require.NoError(t, oc.Err)
	assert.Equal(t, []string{"quiet"}, strs(oc.Output))
	assert.Empty(t, h.rec.Sent())
}

func TestParamsWrapping(t *testing.T) {
	h := newHarness(t)
	oc := h.run("params 'prefix=>> ' syntax=go\necho hi")
	require.NoError(t, oc.Err)
	assert.Equal(t, []string{">> ```go\nhi\n```"}, h.rec.Contents())
}

func TestParamsShow(t *testing.T) {
	h := newHarness(t)
	got := h.texts("params -s")
	require.Len(t, got, 1)
	assert.Equal(t, `prefix=""
return_on_error=false
send=true
suffix=""
syntax=""`, got[0])

	oc := h.run("params nosuch=1")
	require.Error(t, oc.Err)
	oc = h.run("params send=maybe")
	assert.True(t, shellerr.Is(oc.Err, shellerr.TypeCoercionError))
}

func TestErrorPayload(t *testing.T) {
	err := shellerr.New(shellerr.NotFoundError, "no such entry")
	p := ErrorPayload(err, true)
	assert.Equal(t, "Error", p.Title)
	assert.Equal(t, "NotFoundError: no such entry", p.Description)
	assert.Equal(t, "handled", p.Footer.Text)
	assert.Empty(t, ErrorPayload(err, false).Footer.Text)
}

func TestReportError(t *testing.T) {
	h := newHarness(t)
	oc := h.run("nosuch")
	require.NoError(t, h.eng.ReportError(context.Background(), h.fx.Context, oc))

	sent := h.rec.Sent()
	require.Len(t, sent, 1)
	require.Len(t, sent[0].Delivery.Embeds, 1)
	assert.Contains(t, sent[0].Delivery.Embeds[0].Description, "UnknownCommandError")

	assert.NoError(t, h.eng.ReportError(context.Background(), h.fx.Context, Outcome{}))
	assert.Len(t, h.rec.Sent(), 1)
}

func TestCancelledContext(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	oc := h.eng.Execute(ctx, Invocation{Source: "echo hi", Context: h.fx.Context, Index: h.fx.Index()})
	assert.ErrorIs(t, oc.Err, context.Canceled)
}

type fakeScheduler struct {
	d       time.Duration
	command string
	origin  scheduler.Origin
}

func (f *fakeScheduler) Schedule(d time.Duration, command string, origin scheduler.Origin) (scheduler.Job, error) {
	f.d, f.command, f.origin = d, command, origin
	return scheduler.Job{ID: "job-1", FireAt: fixedNow.Add(d), Command: command, Origin: origin}, nil
}

func TestSchedule(t *testing.T) {
	h := newHarness(t)
	oc := h.run("schedule 30s 'echo hi'")
	assert.True(t, shellerr.Is(oc.Err, shellerr.SchedulingError))

	fs := &fakeScheduler{}
	h.eng.SetScheduler(fs)

	oc = h.run("schedule 30s 'echo hi'")
	require.NoError(t, oc.Err)
	assert.Equal(t, 30*time.Second, fs.d)
	assert.Equal(t, "echo hi", fs.command)
	assert.Equal(t, scheduler.Origin{
		UserID:    aliceID,
		GuildID:   "200000000000000001",
		ChannelID: channelID,
		MessageID: messageID,
	}, fs.origin)
	require.Len(t, oc.Output, 2)
	assert.Equal(t, "job-1", oc.Output[0])
	assert.Equal(t, fixedNow.Add(30*time.Second), oc.Output[1])

	require.NoError(t, h.run("schedule 10m echo 'hi there'").Err)
	assert.Equal(t, "echo 'hi there'", fs.command)
	assert.Equal(t, 10*time.Minute, fs.d)

	oc = h.run("schedule 10m")
	assert.True(t, shellerr.Is(oc.Err, shellerr.MissingArgumentError))
}

func TestRunJob(t *testing.T) {
	h := newHarness(t, WithIndexSource(loadFixture(t).Index))
	job := scheduler.Job{
		ID:      "j1",
		Command: "echo fired",
		Origin:  scheduler.Origin{UserID: aliceID, ChannelID: channelID, MessageID: messageID},
	}
	require.NoError(t, h.eng.RunJob(context.Background(), job))
	assert.Equal(t, []string{"fired"}, h.rec.Contents())

	job.Command = "nosuch"
	err := h.eng.RunJob(context.Background(), job)
	require.Error(t, err)
	sent := h.rec.Sent()
	require.Len(t, sent, 2)
	require.Len(t, sent[1].Delivery.Embeds, 1)
	assert.Equal(t, "Error", sent[1].Delivery.Embeds[0].Title)
	assert.Equal(t, channelID, sent[1].Handle.ChannelID)
}

func loadFixture(t *testing.T) *graph.Fixture {
	t.Helper()
	f, err := os.Open("../graph/testdata/guild.yaml")
	require.NoError(t, err)
	defer f.Close()
	fx, err := graph.LoadFixture(f)
	require.NoError(t, err)
	return fx
}

func TestRender(t *testing.T) {
	d := Render([]any{"a", []any{"b", int64(3)}, sink.Handle{MessageID: "x"}, sink.Payload{Title: "T"}, nil}, &Params{})
	assert.Equal(t, "a\nb\n3", d.Content)
	require.Len(t, d.Embeds, 1)
	assert.Equal(t, "T", d.Embeds[0].Title)

	d = Render(nil, &Params{Syntax: "txt"})
	assert.True(t, d.Empty())
}
