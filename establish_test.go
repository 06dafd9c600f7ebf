package qtrust

import (
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kardianos/qtrust/tdef"
	"github.com/kardianos/qtrust/tmock"
)

type trustEnv struct {
	*storeEnv
	ca     *tmock.InMemoryCA
	chain  [][]byte
	prompt *tmock.ScriptedPrompter
	est    *Establisher
}

// newTrustEnv builds a chain of leaf, intermediate (serial 02) and
// root (serial 01) followed by bytes that do not parse.
func newTrustEnv(t *testing.T) *trustEnv {
	t.Helper()
	env := &trustEnv{
		storeEnv: newStoreEnv(t),
		prompt:   &tmock.ScriptedPrompter{},
	}
	ca, err := tmock.NewInMemoryCA("Test Root")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ca.AddIntermediate("Test Issuing"); err != nil {
		t.Fatal(err)
	}
	leaf, err := ca.IssueLeaf("device.local")
	if err != nil {
		t.Fatal(err)
	}
	env.ca = ca
	env.chain = append(ca.Chain(leaf), []byte("not a certificate"))

	est, err := NewEstablisher(EstablisherConfig{
		Store:    env.store,
		Prompter: env.prompt,
		Logger:   env.log,
		Metrics:  env.metrics,
	})
	if err != nil {
		t.Fatal(err)
	}
	env.est = est
	return env
}

func TestNewEstablisherRequires(t *testing.T) {
	s, _ := NewStore(StoreConfig{Engine: tmock.NewMemEngine()})
	if _, err := NewEstablisher(EstablisherConfig{Prompter: &tmock.ScriptedPrompter{}}); err == nil {
		t.Fatal("expected error without store")
	}
	if _, err := NewEstablisher(EstablisherConfig{Store: s}); err == nil {
		t.Fatal("expected error without prompter")
	}
}

func TestCheckTrustOffersOnlyCAs(t *testing.T) {
	env := newTrustEnv(t)
	env.prompt.Select = nil

	if n := env.est.CheckTrust(env.chain); n != 0 {
		t.Fatalf("CheckTrust = %d, want 0", n)
	}
	shown := env.prompt.Shown()
	if len(shown) != 1 {
		t.Fatalf("checklists shown = %d, want 1", len(shown))
	}
	items := shown[0]
	if len(items) != 2 {
		t.Fatalf("items = %q, want intermediate and root", items)
	}
	if !strings.Contains(items[0], "CN=Test Issuing") || !strings.Contains(items[1], "CN=Test Root") {
		t.Fatalf("items = %q", items)
	}
	for _, item := range items {
		if strings.Contains(item, "device.local") {
			t.Fatalf("leaf offered for trust: %q", item)
		}
		if !strings.HasPrefix(item, "🏛 ") {
			t.Fatalf("item missing authority marker: %q", item)
		}
	}
	if got := env.prompt.Prompts()[0]; got != DefaultPrompt {
		t.Fatalf("prompt = %q", got)
	}
	if env.eng.Len(tdef.Dict) != 0 {
		t.Fatal("empty selection saved anchors")
	}
}

func TestCheckTrustSavesBySerial(t *testing.T) {
	env := newTrustEnv(t)
	env.prompt.Select = []int{1}

	if n := env.est.CheckTrust(env.chain); n != 1 {
		t.Fatalf("CheckTrust = %d, want 1", n)
	}
	got, ok, err := env.store.Get("01")
	if err != nil || !ok {
		t.Fatalf("Get(01) = %v, %v", ok, err)
	}
	want := tdef.FromCertificate(env.ca.Root.Cert)
	if !got.Equal(want) {
		t.Fatalf("saved anchor = %+v, want %+v", got, want)
	}
	if got.NameConstraints != nil {
		t.Fatal("name constraints captured")
	}
	if got := testutil.ToFloat64(env.metrics.Selected); got != 1 {
		t.Fatalf("selected metric = %v, want 1", got)
	}
}

func TestCheckTrustCountsFailedSaves(t *testing.T) {
	env := newTrustEnv(t)
	env.prompt.Select = []int{0, 1}
	env.eng.Fault = tmock.FailKey(tmock.OpWriteEntry, "02", errors.New("flash full"))

	if n := env.est.CheckTrust(env.chain); n != 2 {
		t.Fatalf("CheckTrust = %d, want 2", n)
	}
	if env.eng.Len(tdef.Dict) != 1 {
		t.Fatalf("persisted = %d, want 1", env.eng.Len(tdef.Dict))
	}
	notes := env.prompt.Notified()
	if len(notes) != 1 || !strings.HasPrefix(notes[0], "failed to save: ") || !strings.Contains(notes[0], "Test Issuing") {
		t.Fatalf("notifications = %q", notes)
	}
	if got := testutil.ToFloat64(env.metrics.PersistFailures); got != 1 {
		t.Fatalf("persist failures = %v, want 1", got)
	}
}

func TestCheckTrustNotifyFailure(t *testing.T) {
	env := newTrustEnv(t)
	env.prompt.Select = []int{0, 1}
	env.prompt.NotifyErr = errors.New("display gone")
	env.eng.Fault = tmock.FailOp(tmock.OpWriteEntry, errors.New("read only"))

	if n := env.est.CheckTrust(env.chain); n != 2 {
		t.Fatalf("CheckTrust = %d, want 2", n)
	}
	if len(env.prompt.Notified()) != 2 {
		t.Fatalf("notifications = %q", env.prompt.Notified())
	}
	if env.log.count("ERROR") != 2 {
		t.Fatalf("notify errors not logged: %v", env.log.lines)
	}
}

func TestCheckTrustPromptError(t *testing.T) {
	env := newTrustEnv(t)
	env.prompt.Select = []int{0, 1}
	env.prompt.Err = errors.New("cancelled")

	if n := env.est.CheckTrust(env.chain); n != 0 {
		t.Fatalf("CheckTrust = %d, want 0", n)
	}
	if env.eng.HasDict(tdef.Dict) {
		t.Fatal("prompt failure touched storage")
	}
	if env.log.count("ERROR") != 1 {
		t.Fatalf("prompt failure not logged as error: %v", env.log.lines)
	}
}

func TestCheckTrustNoCAs(t *testing.T) {
	env := newTrustEnv(t)
	env.prompt.Select = []int{0}
	leafOnly := env.chain[:1]

	if n := env.est.CheckTrust(leafOnly); n != 0 {
		t.Fatalf("CheckTrust = %d, want 0", n)
	}
	if len(env.prompt.Shown()) != 0 {
		t.Fatal("prompted with no candidates")
	}
}

func TestCheckTrustIgnoresBadIndices(t *testing.T) {
	env := newTrustEnv(t)
	env.prompt.Select = []int{-1, 0, 7}

	if n := env.est.CheckTrust(env.chain); n != 1 {
		t.Fatalf("CheckTrust = %d, want 1", n)
	}
	if _, ok, _ := env.store.Get("02"); !ok {
		t.Fatal("intermediate not saved")
	}
}

type fakeParser map[string]Certificate

func (p fakeParser) ParseCertificate(der []byte) (Certificate, error) {
	c, ok := p[string(der)]
	if !ok {
		return Certificate{}, errors.New("unparsable")
	}
	return c, nil
}

func TestCandidates(t *testing.T) {
	parser := fakeParser{
		"ca1":  {Subject: "CN=One", Serial: "01", IsCA: true},
		"leaf": {Subject: "CN=Leaf", Serial: "02"},
		"ca2":  {Subject: "CN=Two", Serial: "03", IsCA: true},
	}
	chain := [][]byte{[]byte("ca1"), []byte("junk"), []byte("leaf"), []byte("ca2")}
	got := Candidates(parser, chain, &recordLogger{})
	if len(got) != 2 || got[0].Subject != "CN=One" || got[1].Subject != "CN=Two" {
		t.Fatalf("Candidates = %+v", got)
	}
}

func TestDisplayLine(t *testing.T) {
	tests := []struct {
		name   string
		serial string
		want   string
	}{
		{"short", "01:02", "🏛 CN=X\n01:02\n"},
		{"exact", "01:02:03:04:05:06:07:08:", "🏛 CN=X\n01:02:03:04:05:06:07:08:\n"},
		{
			"split",
			"01:02:03:04:05:06:07:08:09:0a:0b",
			"🏛 CN=X\n01:02:03:04:05:06:07:08:\n09:0a:0b",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := DisplayLine(Certificate{Subject: "CN=X", Serial: tc.serial})
			if got != tc.want {
				t.Fatalf("DisplayLine = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestX509Parser(t *testing.T) {
	ca, err := tmock.NewInMemoryCA("Parse Root")
	if err != nil {
		t.Fatal(err)
	}
	c, err := X509Parser{}.ParseCertificate(ca.Root.DER)
	if err != nil {
		t.Fatal(err)
	}
	if !c.IsCA || c.Serial != "01" || !strings.Contains(c.Subject, "CN=Parse Root") {
		t.Fatalf("parsed = %+v", c)
	}
	if _, err := (X509Parser{}).ParseCertificate([]byte{0x30}); err == nil {
		t.Fatal("expected parse error")
	}
}
