package session

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"

	"github.com/hyperjump/policyqa/internal/apperr"
	"github.com/hyperjump/policyqa/internal/config"
	"github.com/hyperjump/policyqa/internal/embedding"
	"github.com/hyperjump/policyqa/internal/indexer"
	"github.com/hyperjump/policyqa/internal/models"
	"github.com/hyperjump/policyqa/internal/provider"
	"github.com/hyperjump/policyqa/internal/rag"
	"github.com/hyperjump/policyqa/internal/vectorstore"
)

const cataractAnswer = `{"Decision": "Approved", "Amount": "₹50,000", "Justification": "Clause 4.2"}`

type fakeChatModel struct {
	reply string
	err   error
	last  []*schema.Message
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.last = input
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

// gatedEmbedder blocks EmbedBatch until gate is closed.
type gatedEmbedder struct {
	*embedding.MockEmbedder
	entered chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func (g *gatedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.gate
	return g.MockEmbedder.EmbedBatch(ctx, texts)
}

type fakeProviders struct {
	mu        sync.Mutex
	llm       model.BaseChatModel
	emb       embedding.Embedder
	embErr    error
	missing   map[provider.Backend]bool
	embedders int
}

func (f *fakeProviders) Embedder(ctx context.Context, b provider.Backend) (embedding.Embedder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.embErr != nil {
		return nil, f.embErr
	}
	f.embedders++
	if f.emb != nil {
		return f.emb, nil
	}
	return embedding.NewMockEmbedder(64), nil
}

func (f *fakeProviders) ChatModel(ctx context.Context, b provider.Backend, opts provider.ChatOptions) (model.BaseChatModel, error) {
	return f.llm, nil
}

func (f *fakeProviders) CheckCredentials(b provider.Backend) error {
	if f.missing[b] {
		return apperr.ErrProviderConfig
	}
	return nil
}

type recordingAnswerer struct {
	mu       sync.Mutex
	answer   string
	err      error
	calls    int
	lastHist []models.ConversationTurn
}

func (r *recordingAnswerer) Answer(ctx context.Context, llm model.BaseChatModel, rt retriever.Retriever, q string, history []models.ConversationTurn) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.lastHist = history
	if r.err != nil {
		return "", r.err
	}
	if r.answer != "" {
		return r.answer, nil
	}
	return "answer to " + q, nil
}

func docxBytes(paragraphs ...string) []byte {
	var body string
	for _, p := range paragraphs {
		body += `<w:p><w:r><w:t>` + p + `</w:t></w:r></w:p>`
	}
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, _ := w.Create("word/document.xml")
	_, _ = fw.Write([]byte(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` + body + `</w:body></w:document>`))
	_ = w.Close()
	return buf.Bytes()
}

func policyUpload() *Upload {
	return &Upload{
		Name: "policy.docx",
		Reader: bytes.NewReader(docxBytes(
			"Clause 4.2: Cataract surgery is covered up to 50000 per eye.",
			"Clause 7.1: A waiting period of 24 months applies to cataract treatment.",
		)),
	}
}

type fixture struct {
	ctrl      *Controller
	store     *vectorstore.Store
	providers *fakeProviders
	answerer  *recordingAnswerer
	uploadDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		store:     vectorstore.New(filepath.Join(root, vectorstore.DefaultDir)),
		providers: &fakeProviders{llm: &fakeChatModel{reply: cataractAnswer}},
		answerer:  &recordingAnswerer{},
		uploadDir: filepath.Join(root, "uploads"),
	}
	loader := indexer.NewLoader(config.ChunkingConfig{ChunkSize: 20, ChunkOverlap: 2})
	f.ctrl = NewController(f.providers, f.store, loader, f.answerer, WithUploadDir(f.uploadDir))
	return f
}

func (f *fixture) stagedFiles(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(f.uploadDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestProcess_BuildsIndexAndRemovesUpload(t *testing.T) {
	f := newFixture(t)
	sess := New(provider.BackendOpenAI)

	doc, err := f.ctrl.Process(context.Background(), sess, policyUpload())
	if err != nil {
		t.Fatal(err)
	}
	if doc.Name != "policy.docx" || doc.ChunkCount == 0 || !strings.HasPrefix(doc.ID, "doc:") {
		t.Errorf("doc = %+v", doc)
	}
	if sess.State() != StateReady || sess.Document() == nil {
		t.Errorf("state = %s", sess.State())
	}
	if !f.store.Exists() {
		t.Error("index not persisted")
	}
	if files := f.stagedFiles(t); len(files) != 0 {
		t.Errorf("staged upload not removed: %v", files)
	}
	_ = sess.Close()
}

func TestProcess_FailureRestoresStateAndRemovesUpload(t *testing.T) {
	f := newFixture(t)
	sess := New(provider.BackendOpenAI)

	_, err := f.ctrl.Process(context.Background(), sess, &Upload{Name: "notes.txt", Reader: strings.NewReader("plain text")})
	if !errors.Is(err, apperr.ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
	if sess.State() != StateIdle {
		t.Errorf("state = %s, want idle", sess.State())
	}
	if files := f.stagedFiles(t); len(files) != 0 {
		t.Errorf("staged upload not removed: %v", files)
	}

	if _, err := f.ctrl.Process(context.Background(), sess, policyUpload()); err != nil {
		t.Fatal(err)
	}
	defer sess.Close()
	f.providers.embErr = errors.New("bad key")
	sess.setBackend(provider.BackendGemini)
	if _, err := f.ctrl.Process(context.Background(), sess, policyUpload()); err == nil {
		t.Fatal("expected embedder error")
	}
	if sess.State() != StateReady {
		t.Errorf("state = %s, want ready after failed re-upload", sess.State())
	}
}

func TestProcess_NoDocument(t *testing.T) {
	f := newFixture(t)
	sess := New(provider.BackendOpenAI)
	for _, up := range []*Upload{nil, {Name: "policy.pdf"}, {Reader: strings.NewReader("x")}} {
		if _, err := f.ctrl.Process(context.Background(), sess, up); !errors.Is(err, apperr.ErrNoDocument) {
			t.Errorf("Process(%+v) err = %v", up, err)
		}
	}
}

func TestProcess_SingleFlight(t *testing.T) {
	f := newFixture(t)
	gated := &gatedEmbedder{MockEmbedder: embedding.NewMockEmbedder(64), entered: make(chan struct{}), gate: make(chan struct{})}
	f.providers.emb = gated
	sess := New(provider.BackendOpenAI)
	defer sess.Close()

	done := make(chan error, 1)
	go func() {
		_, err := f.ctrl.Process(context.Background(), sess, policyUpload())
		done <- err
	}()
	<-gated.entered

	if sess.State() != StateProcessing {
		t.Errorf("state = %s, want processing", sess.State())
	}
	if _, err := f.ctrl.Process(context.Background(), sess, policyUpload()); !errors.Is(err, apperr.ErrBusy) {
		t.Errorf("second Process err = %v, want ErrBusy", err)
	}
	if _, err := f.ctrl.Ask(context.Background(), sess, "covered?"); !errors.Is(err, apperr.ErrBusy) {
		t.Errorf("Ask during Process err = %v, want ErrBusy", err)
	}
	close(gated.gate)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if f.providers.embedders != 1 {
		t.Errorf("embedders built = %d, want 1", f.providers.embedders)
	}
}

func TestAsk_MissingIndex(t *testing.T) {
	f := newFixture(t)
	sess := New(provider.BackendOpenAI)
	defer sess.Close()

	reply, err := f.ctrl.Ask(context.Background(), sess, "Is cataract covered?")
	if !errors.Is(err, apperr.ErrIndexNotFound) {
		t.Fatalf("err = %v, want ErrIndexNotFound", err)
	}
	if reply.Answer != "Please upload a document first." || !reply.Failed {
		t.Errorf("reply = %+v", reply)
	}
	if len(sess.History()) != 0 || len(sess.Transcript()) != 0 {
		t.Error("nothing should be appended without an index")
	}
	if f.answerer.calls != 0 {
		t.Error("answerer should not run")
	}
}

func TestAsk_EmptyQuestion(t *testing.T) {
	f := newFixture(t)
	sess := New(provider.BackendOpenAI)
	if _, err := f.ctrl.Ask(context.Background(), sess, "   "); !errors.Is(err, apperr.ErrEmptyQuestion) {
		t.Errorf("err = %v", err)
	}
}

func TestAsk_BoundedHistoryUnboundedTranscript(t *testing.T) {
	f := newFixture(t)
	sess := New(provider.BackendOpenAI)
	defer sess.Close()
	if _, err := f.ctrl.Process(context.Background(), sess, policyUpload()); err != nil {
		t.Fatal(err)
	}

	const turns = 8
	for i := 1; i <= turns; i++ {
		q := fmt.Sprintf("question %d", i)
		reply, err := f.ctrl.Ask(context.Background(), sess, q)
		if err != nil {
			t.Fatal(err)
		}
		if reply.Failed || reply.Answer != "answer to "+q {
			t.Errorf("turn %d reply = %+v", i, reply)
		}
		if got, want := len(sess.History()), min(i, HistoryLimit); got != want {
			t.Errorf("after %d turns history = %d, want %d", i, got, want)
		}
		if want := min(i-1, HistoryLimit); len(f.answerer.lastHist) != want {
			t.Errorf("turn %d saw %d history entries, want %d", i, len(f.answerer.lastHist), want)
		}
	}
	history := sess.History()
	for i, turn := range history {
		if want := fmt.Sprintf("question %d", turns-HistoryLimit+1+i); turn.Question != want {
			t.Errorf("history[%d] = %q, want %q", i, turn.Question, want)
		}
	}
	transcript := sess.Transcript()
	if len(transcript) != 2*turns {
		t.Fatalf("transcript = %d, want %d", len(transcript), 2*turns)
	}
	if transcript[0].Role != models.RoleUser || transcript[1].Role != models.RoleAssistant {
		t.Errorf("transcript roles = %s, %s", transcript[0].Role, transcript[1].Role)
	}
}

func TestAsk_FailureSubstitution(t *testing.T) {
	f := newFixture(t)
	sess := New(provider.BackendOpenAI)
	defer sess.Close()
	if _, err := f.ctrl.Process(context.Background(), sess, policyUpload()); err != nil {
		t.Fatal(err)
	}
	f.answerer.err = apperr.Wrap(errors.New("429 rate limited"), apperr.KindExternalCall, "failed to answer question")

	reply, err := f.ctrl.Ask(context.Background(), sess, "Is cataract covered?")
	if err != nil {
		t.Fatalf("err = %v, want failure reported in reply", err)
	}
	if !reply.Failed || reply.Answer != FailureMessage {
		t.Errorf("reply = %+v", reply)
	}
	transcript := sess.Transcript()
	if len(transcript) != 2 || transcript[1].Content != FailureMessage {
		t.Errorf("transcript = %+v", transcript)
	}
	history := sess.History()
	if len(history) != 1 || history[0].Answer != FailureMessage {
		t.Errorf("history = %+v", history)
	}
}

func TestAsk_WithRAGChain(t *testing.T) {
	f := newFixture(t)
	f.ctrl.answerer = rag.NewAnswerer()
	sess := New(provider.BackendOpenAI)
	defer sess.Close()
	if _, err := f.ctrl.Process(context.Background(), sess, policyUpload()); err != nil {
		t.Fatal(err)
	}
	reply, err := f.ctrl.Ask(context.Background(), sess, "46M, cataract surgery, 3-year policy")
	if err != nil {
		t.Fatal(err)
	}
	if reply.Failed || reply.Answer != cataractAnswer {
		t.Errorf("reply = %+v", reply)
	}
}

func TestAsk_CoPayScenario(t *testing.T) {
	const copayAnswer = `{"Decision": "Approved", "Amount": "₹22,500", "Justification": "Clause 4.5 and Clause 9.2"}`
	f := newFixture(t)
	llm := &fakeChatModel{reply: copayAnswer}
	f.providers.llm = llm
	f.ctrl.answerer = rag.NewAnswerer()
	sess := New(provider.BackendOpenAI)
	defer sess.Close()

	up := &Upload{Name: "policy.docx", Reader: bytes.NewReader(docxBytes(
		"Clause 4.5: cataract surgery covered after 1 year",
		"Clause 9.2: 10% co-pay on ₹25,000 cap",
	))}
	if _, err := f.ctrl.Process(context.Background(), sess, up); err != nil {
		t.Fatal(err)
	}
	question := "Is cataract surgery claim of ₹25,000 covered after 14 months?"
	reply, err := f.ctrl.Ask(context.Background(), sess, question)
	if err != nil {
		t.Fatal(err)
	}
	if reply.Failed || reply.Answer != copayAnswer {
		t.Errorf("reply = %+v", reply)
	}
	var prompt strings.Builder
	for _, m := range llm.last {
		prompt.WriteString(m.Content)
	}
	for _, want := range []string{"Clause 4.5", "Clause 9.2", question} {
		if !strings.Contains(prompt.String(), want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestProcess_MissingCredentials(t *testing.T) {
	f := newFixture(t)
	f.providers.missing = map[provider.Backend]bool{provider.BackendOpenAI: true}
	sess := New(provider.BackendOpenAI)
	defer sess.Close()

	_, err := f.ctrl.Process(context.Background(), sess, policyUpload())
	if !errors.Is(err, apperr.ErrProviderConfig) {
		t.Fatalf("err = %v, want ErrProviderConfig", err)
	}
	if f.providers.embedders != 0 {
		t.Errorf("embedders built = %d, want 0", f.providers.embedders)
	}
	if f.store.Exists() || sess.State() != StateIdle {
		t.Errorf("exists = %v, state = %s", f.store.Exists(), sess.State())
	}
	if files := f.stagedFiles(t); len(files) != 0 {
		t.Errorf("upload staged without credentials: %v", files)
	}
}

func TestAsk_MissingCredentials(t *testing.T) {
	f := newFixture(t)
	sess := New(provider.BackendOpenAI)
	defer sess.Close()
	if _, err := f.ctrl.Process(context.Background(), sess, policyUpload()); err != nil {
		t.Fatal(err)
	}
	f.providers.missing = map[provider.Backend]bool{provider.BackendOpenAI: true}

	reply, err := f.ctrl.Ask(context.Background(), sess, "Is cataract covered?")
	if !errors.Is(err, apperr.ErrProviderConfig) {
		t.Fatalf("err = %v, want ErrProviderConfig", err)
	}
	if !reply.Failed || !strings.Contains(reply.Answer, "configure your API keys") {
		t.Errorf("reply = %+v", reply)
	}
	if len(sess.History()) != 0 || len(sess.Transcript()) != 0 || f.answerer.calls != 0 {
		t.Error("no turn should be recorded without credentials")
	}
}

func TestAsk_IndexSharedAcrossSessions(t *testing.T) {
	f := newFixture(t)
	uploader := New(provider.BackendOpenAI)
	defer uploader.Close()
	if _, err := f.ctrl.Process(context.Background(), uploader, policyUpload()); err != nil {
		t.Fatal(err)
	}
	other := New(provider.BackendOpenAI)
	defer other.Close()
	reply, err := f.ctrl.Ask(context.Background(), other, "Is cataract covered?")
	if err != nil || reply.Failed {
		t.Errorf("reply = %+v, err = %v", reply, err)
	}
}

func TestSelectBackendAndReset(t *testing.T) {
	f := newFixture(t)
	f.providers.missing = map[provider.Backend]bool{provider.BackendAzure: true}
	sess := New(provider.BackendOpenAI)

	if err := f.ctrl.SelectBackend(sess, provider.BackendAzure); !errors.Is(err, apperr.ErrProviderConfig) {
		t.Errorf("err = %v, want ErrProviderConfig", err)
	}
	if sess.Backend() != provider.BackendOpenAI {
		t.Error("backend changed despite missing credentials")
	}
	if err := f.ctrl.SelectBackend(sess, provider.BackendGemini); err != nil {
		t.Fatal(err)
	}
	if sess.Backend() != provider.BackendGemini {
		t.Errorf("backend = %s", sess.Backend())
	}

	sess.appendMessage(models.RoleUser, "q")
	sess.appendTurn(models.ConversationTurn{Question: "q", Answer: "a"})
	f.ctrl.Reset(sess)
	if len(sess.History()) != 0 || len(sess.Transcript()) != 0 {
		t.Error("reset should clear history and transcript")
	}
}
