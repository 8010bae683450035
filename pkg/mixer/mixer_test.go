package mixer

import (
	"testing"

	"github.com/zynaudio/engine/internal/fakehost"
	"github.com/zynaudio/engine/pkg/host"
)

const (
	testRate   = 48000
	testFrames = 8
)

func newChannelFixture(t *testing.T, strips int) (*Engine, *fakehost.Host, []int) {
	t.Helper()
	h := fakehost.New(testRate, testFrames)
	e := NewEngine(Channel, testRate, testFrames)
	idxs := make([]int, strips)
	for i := 0; i < strips; i++ {
		idx, err := e.AddStrip(h)
		if err != nil {
			t.Fatalf("AddStrip: %v", err)
		}
		idxs[i] = idx
		e.SetInRouted(idx, true)
		e.SetOutRouted(idx, true)
	}
	return e, h, idxs
}

func driveConstant(h *fakehost.Host, e *Engine, inA, inB host.Port, valA, valB float32, blocks int) {
	in := make([]float32, testFrames)
	for i := range in {
		in[i] = valA
	}
	inBdata := make([]float32, testFrames)
	for i := range inBdata {
		inBdata[i] = valB
	}
	h.SetInput(inA, in)
	h.SetInput(inB, inBdata)
	fn := e.ProcessFunc()
	h.SetProcessCallback(fn)
	for b := 0; b < blocks; b++ {
		h.Process(testFrames)
	}
}

func TestLevelRampConvergesToRequested(t *testing.T) {
	e, h, idx := newChannelFixture(t, 1)
	inA, inB, _ := e.StripInputPorts(idx[0])
	outA, outB, _ := e.StripOutputPorts(idx[0])

	e.SetLevel(idx[0], 1.0)
	driveConstant(h, e, inA, inB, 1.0, 1.0, 1)

	a := h.Output(outA)
	if a[0] >= a[testFrames-1] {
		t.Errorf("expected ramp to rise across the first block: a[0]=%v a[last]=%v", a[0], a[testFrames-1])
	}

	// A second block starts its ramp from the level actually reached, so
	// by its end the strip has fully converged on the requested level.
	driveConstant(h, e, inA, inB, 1.0, 1.0, 1)
	a = h.Output(outA)
	b := h.Output(outB)
	if a[testFrames-1] < 0.99 {
		t.Errorf("last sample A after convergence: got %v, want near 1.0", a[testFrames-1])
	}
	if b[testFrames-1] < 0.99 {
		t.Errorf("last sample B after convergence: got %v, want near 1.0", b[testFrames-1])
	}
}

func TestMuteForcesSilence(t *testing.T) {
	e, h, idx := newChannelFixture(t, 1)
	inA, inB, _ := e.StripInputPorts(idx[0])
	outA, outB, _ := e.StripOutputPorts(idx[0])

	e.SetLevel(idx[0], 1.0)
	driveConstant(h, e, inA, inB, 1.0, 1.0, 2)
	e.SetMute(idx[0], true)
	// Muting zeroes the stored level only after the first muted block's
	// ramp-down completes, so silence is only guaranteed from the second
	// muted block onward.
	driveConstant(h, e, inA, inB, 1.0, 1.0, 2)

	a := h.Output(outA)
	b := h.Output(outB)
	if a[testFrames-1] != 0 || b[testFrames-1] != 0 {
		t.Errorf("muted strip: got a=%v b=%v, want 0", a[testFrames-1], b[testFrames-1])
	}
	if !e.Mute(idx[0]) {
		t.Error("Mute getter: expected true after SetMute(true)")
	}
	e.ToggleMute(idx[0])
	if e.Mute(idx[0]) {
		t.Error("ToggleMute: expected false after toggling a muted strip")
	}
}

func TestBalanceAttenuatesOppositeLeg(t *testing.T) {
	e, h, idx := newChannelFixture(t, 1)
	inA, inB, _ := e.StripInputPorts(idx[0])
	outA, outB, _ := e.StripOutputPorts(idx[0])

	e.SetLevel(idx[0], 1.0)
	e.SetBalance(idx[0], 1.0) // full right: A attenuated to 0, B untouched
	driveConstant(h, e, inA, inB, 1.0, 1.0, 4)

	a := h.Output(outA)
	b := h.Output(outB)
	if a[testFrames-1] > 0.01 {
		t.Errorf("balance=1.0: leg A got %v, want near 0", a[testFrames-1])
	}
	if b[testFrames-1] < 0.99 {
		t.Errorf("balance=1.0: leg B got %v, want near 1.0", b[testFrames-1])
	}
}

func TestMSDecode(t *testing.T) {
	e, h, idx := newChannelFixture(t, 1)
	inA, inB, _ := e.StripInputPorts(idx[0])
	outA, outB, _ := e.StripOutputPorts(idx[0])

	e.SetLevel(idx[0], 1.0)
	e.SetMS(idx[0], true)
	driveConstant(h, e, inA, inB, 0.6, 0.2, 4)

	a := h.Output(outA)
	b := h.Output(outB)
	wantM := float32(0.6 + 0.2)
	wantS := float32(0.6 - 0.2)
	if diff := a[testFrames-1] - wantM; diff > 0.01 || diff < -0.01 {
		t.Errorf("M leg: got %v, want %v", a[testFrames-1], wantM)
	}
	if diff := b[testFrames-1] - wantS; diff > 0.01 || diff < -0.01 {
		t.Errorf("S leg: got %v, want %v", b[testFrames-1], wantS)
	}
}

func TestMonoFold(t *testing.T) {
	e, h, idx := newChannelFixture(t, 1)
	inA, inB, _ := e.StripInputPorts(idx[0])
	outA, outB, _ := e.StripOutputPorts(idx[0])

	e.SetLevel(idx[0], 1.0)
	e.SetMono(idx[0], true)
	driveConstant(h, e, inA, inB, 1.0, -0.2, 4)

	a := h.Output(outA)
	b := h.Output(outB)
	want := float32((1.0 - 0.2) / 2)
	if diff := a[testFrames-1] - want; diff > 0.01 || diff < -0.01 {
		t.Errorf("mono A: got %v, want %v", a[testFrames-1], want)
	}
	if a[testFrames-1] != b[testFrames-1] {
		t.Errorf("mono fold: legs differ, a=%v b=%v", a[testFrames-1], b[testFrames-1])
	}
}

func TestPhaseInvert(t *testing.T) {
	e, h, idx := newChannelFixture(t, 1)
	inA, inB, _ := e.StripInputPorts(idx[0])
	outA, outB, _ := e.StripOutputPorts(idx[0])

	e.SetLevel(idx[0], 1.0)
	e.SetPhase(idx[0], true)
	driveConstant(h, e, inA, inB, 0.5, 0.5, 4)

	b := h.Output(outB)
	if b[testFrames-1] > -0.49 {
		t.Errorf("phase invert: leg B got %v, want near -0.5", b[testFrames-1])
	}
	a := h.Output(outA)
	if a[testFrames-1] < 0.49 {
		t.Errorf("phase invert: leg A got %v, want near 0.5 (untouched)", a[testFrames-1])
	}

	e.TogglePhase(idx[0])
	if e.Phase(idx[0]) {
		t.Error("TogglePhase: expected false after toggling an inverted strip")
	}
}

func TestSoloSilencesUnsoloedStrips(t *testing.T) {
	e, h, idx := newChannelFixture(t, 2)
	inA0, inB0, _ := e.StripInputPorts(idx[0])
	outA0, outB0, _ := e.StripOutputPorts(idx[0])
	inA1, inB1, _ := e.StripInputPorts(idx[1])
	outA1, _, _ := e.StripOutputPorts(idx[1])

	e.SetLevel(idx[0], 1.0)
	e.SetLevel(idx[1], 1.0)

	in := make([]float32, testFrames)
	for i := range in {
		in[i] = 1.0
	}
	h.SetInput(inA0, in)
	h.SetInput(inB0, in)
	h.SetInput(inA1, in)
	h.SetInput(inB1, in)
	h.SetProcessCallback(e.ProcessFunc())

	e.SetSolo(idx[0], true)
	if !e.GlobalSolo() {
		t.Fatal("GlobalSolo: expected true once any strip is soloed")
	}

	for b := 0; b < 4; b++ {
		h.Process(testFrames)
	}

	a0 := h.Output(outA0)
	_ = outB0
	a1 := h.Output(outA1)
	if a0[testFrames-1] < 0.99 {
		t.Errorf("soloed strip: got %v, want near 1.0", a0[testFrames-1])
	}
	if a1[testFrames-1] != 0 {
		t.Errorf("un-soloed strip under solo: got %v, want silence", a1[testFrames-1])
	}
}

func TestMainStripSoloExemptAndClearsOtherSolos(t *testing.T) {
	h := fakehost.New(testRate, testFrames)
	e := NewEngine(Mixbus, testRate, testFrames)
	if err := e.RegisterMainPorts(h); err != nil {
		t.Fatalf("RegisterMainPorts: %v", err)
	}
	e.SetLevel(0, 1.0)
	mainOutA, _, _ := e.StripOutputPorts(0)

	idxA, _ := e.AddStrip(h)
	e.SetLevel(idxA, 1.0)
	e.SetNormalise(idxA, true)
	e.SetInRouted(idxA, true)
	e.SetOutRouted(idxA, true)
	e.SetSolo(idxA, true)

	inA, inB, _ := e.StripInputPorts(idxA)
	loud := make([]float32, testFrames)
	for i := range loud {
		loud[i] = 1.0
	}
	h.SetInput(inA, loud)
	h.SetInput(inB, loud)
	h.SetProcessCallback(e.ProcessFunc())
	for b := 0; b < 4; b++ {
		h.Process(testFrames)
	}

	// The main strip passes the soloed channel's contribution through
	// even though the main strip itself never has solo set.
	out := h.Output(mainOutA)
	if out[testFrames-1] < 0.99 {
		t.Errorf("main strip under a channel solo: got %v, want near 1.0", out[testFrames-1])
	}

	idxB, _ := e.AddStrip(h)
	e.SetSolo(idxB, true)

	e.SetSolo(0, true)
	if e.Solo(idxA) || e.Solo(idxB) {
		t.Error("soloing the main strip should clear every other strip's solo")
	}
	if !e.GlobalSolo() {
		t.Error("GlobalSolo: expected true once the main strip is soloed")
	}
}

func TestResetRestoresDefaultsAndClearsSolo(t *testing.T) {
	e, _, idx := newChannelFixture(t, 1)
	i := idx[0]

	e.SetLevel(i, 0.1)
	e.SetBalance(i, 0.5)
	e.SetMute(i, true)
	e.SetMono(i, true)
	e.SetPhase(i, true)
	e.SetSolo(i, true)
	e.SetSend(i, 1, 0.7)
	e.SetSendMode(i, 1, PreFader)

	e.Reset(i)

	if got := e.Level(i); got != 0.8 {
		t.Errorf("Level after Reset: got %v, want 0.8", got)
	}
	if got := e.Balance(i); got != 0 {
		t.Errorf("Balance after Reset: got %v, want 0", got)
	}
	if e.Mute(i) || e.Mono(i) || e.Phase(i) || e.Solo(i) {
		t.Error("Reset: expected mute/mono/phase/solo all false")
	}
	if e.GlobalSolo() {
		t.Error("Reset: expected GlobalSolo false once the only soloed strip resets")
	}
	if got := e.Send(i, 1); got != 0 {
		t.Errorf("Send after Reset: got %v, want 0", got)
	}
	if got := e.SendMode(i, 1); got != PostFader {
		t.Errorf("SendMode after Reset: got %v, want PostFader", got)
	}
}

func TestSendAndMainNormaliseNoOpInMixbus(t *testing.T) {
	h := fakehost.New(testRate, testFrames)
	e := NewEngine(Mixbus, testRate, testFrames)
	if err := e.RegisterMainPorts(h); err != nil {
		t.Fatalf("RegisterMainPorts: %v", err)
	}
	idx, err := e.AddStrip(h)
	if err != nil {
		t.Fatalf("AddStrip: %v", err)
	}

	e.SetSend(idx, 1, 0.5) // no-op: mode is Mixbus
	if got := e.Send(idx, 1); got != 0 {
		t.Errorf("SetSend in Mixbus mode: expected no-op, got %v", got)
	}

	e.SetNormalise(0, true) // no-op: strip 0 can't normalise into itself
	if e.Normalise(0) {
		t.Error("SetNormalise(0, true): expected no-op on the main strip")
	}
	e.SetNormalise(idx, true)
	if !e.Normalise(idx) {
		t.Error("SetNormalise: expected true on a non-main strip")
	}
}

func TestMixbusSumsNormalisedStrips(t *testing.T) {
	h := fakehost.New(testRate, testFrames)
	e := NewEngine(Mixbus, testRate, testFrames)
	if err := e.RegisterMainPorts(h); err != nil {
		t.Fatalf("RegisterMainPorts: %v", err)
	}
	mainOutA, mainOutB, _ := e.StripOutputPorts(0)
	e.SetLevel(0, 1.0)
	e.SetInRouted(0, true)
	e.SetOutRouted(0, true)

	idxA, _ := e.AddStrip(h)
	idxB, _ := e.AddStrip(h)
	for _, idx := range []int{idxA, idxB} {
		e.SetLevel(idx, 1.0)
		e.SetNormalise(idx, true)
		e.SetInRouted(idx, true)
		e.SetOutRouted(idx, true)
	}

	inA1, inB1, _ := e.StripInputPorts(idxA)
	inA2, inB2, _ := e.StripInputPorts(idxB)
	in1 := make([]float32, testFrames)
	in2 := make([]float32, testFrames)
	for i := range in1 {
		in1[i] = 0.3
		in2[i] = 0.2
	}
	h.SetInput(inA1, in1)
	h.SetInput(inB1, in1)
	h.SetInput(inA2, in2)
	h.SetInput(inB2, in2)

	// main strip's own input stays silent; it only reflects the
	// normalise bus contributed by the other two strips.
	h.SetProcessCallback(e.ProcessFunc())
	for b := 0; b < 6; b++ {
		h.Process(testFrames)
	}

	outA := h.Output(mainOutA)
	outB := h.Output(mainOutB)
	want := float32(0.5)
	if diff := outA[testFrames-1] - want; diff > 0.02 || diff < -0.02 {
		t.Errorf("mixbus sum A: got %v, want near %v", outA[testFrames-1], want)
	}
	if diff := outB[testFrames-1] - want; diff > 0.02 || diff < -0.02 {
		t.Errorf("mixbus sum B: got %v, want near %v", outB[testFrames-1], want)
	}
}

func TestFxSendPreFader(t *testing.T) {
	h := fakehost.New(testRate, testFrames)
	e := NewEngine(Channel, testRate, testFrames)
	sendNum, err := e.AddSend(h)
	if err != nil {
		t.Fatalf("AddSend: %v", err)
	}
	if sendNum != 1 {
		t.Fatalf("AddSend: got send number %d, want 1", sendNum)
	}

	idx, err := e.AddStrip(h)
	if err != nil {
		t.Fatalf("AddStrip: %v", err)
	}
	e.SetInRouted(idx, true)
	e.SetOutRouted(idx, true)
	e.SetLevel(idx, 0.5)
	e.SetSend(idx, sendNum, 1.0)
	e.SetSendMode(idx, sendNum, PreFader)

	inA, inB, _ := e.StripInputPorts(idx)
	in := make([]float32, testFrames)
	for i := range in {
		in[i] = 1.0
	}
	h.SetInput(inA, in)
	h.SetInput(inB, in)
	h.SetProcessCallback(e.ProcessFunc())
	for b := 0; b < 6; b++ {
		h.Process(testFrames)
	}

	sendPort, _, _ := sendPorts(e, h)
	sendOut := h.Output(sendPort)
	if diff := sendOut[testFrames-1] - 1.0; diff > 0.01 || diff < -0.01 {
		t.Errorf("pre-fader send: got %v, want near 1.0 (unattenuated by strip level)", sendOut[testFrames-1])
	}
}

// sendPorts retrieves the first fx send's output ports by walking the
// engine's own port registrations on h, since fx send ports aren't
// otherwise exposed to callers outside the package.
func sendPorts(e *Engine, h *fakehost.Host) (a, b host.Port, ok bool) {
	for _, s := range e.loadSends() {
		if s != nil {
			return s.outA, s.outB, true
		}
	}
	return host.Port{}, host.Port{}, false
}

func TestDpmPeakAndHold(t *testing.T) {
	e, h, idx := newChannelFixture(t, 1)
	i := idx[0]
	inA, inB, _ := e.StripInputPorts(i)

	e.SetLevel(i, 1.0)
	e.EnableDpm(i, true)

	peak := make([]float32, testFrames)
	peak[0] = 0.9
	h.SetInput(inA, peak)
	h.SetInput(inB, peak)
	h.SetProcessCallback(e.ProcessFunc())
	for b := 0; b < 3; b++ {
		h.Process(testFrames)
	}

	if got := e.Dpm(i, 0); got <= -50 {
		t.Errorf("Dpm after a 0.9 peak: got %v dBFS, want close to 0", got)
	}
	if got := e.DpmHold(i, 0); got <= -50 {
		t.Errorf("DpmHold after a 0.9 peak: got %v dBFS, want close to 0", got)
	}

	silent := make([]float32, testFrames)
	h.SetInput(inA, silent)
	h.SetInput(inB, silent)
	for b := 0; b < 3; b++ {
		h.Process(testFrames)
	}
	// Hold should still report the prior peak; it decays only on the
	// shared hold-period counter elapsing, not immediately.
	if got := e.DpmHold(i, 0); got <= -50 {
		t.Errorf("DpmHold should persist across a few silent blocks, got %v", got)
	}
}

func TestEnableDpmDisableDoesNotClearLastValues(t *testing.T) {
	e, h, idx := newChannelFixture(t, 1)
	i := idx[0]
	inA, inB, _ := e.StripInputPorts(i)
	e.SetLevel(i, 1.0)
	e.EnableDpm(i, true)

	loud := make([]float32, testFrames)
	for k := range loud {
		loud[k] = 0.8
	}
	h.SetInput(inA, loud)
	h.SetInput(inB, loud)
	h.SetProcessCallback(e.ProcessFunc())
	h.Process(testFrames)

	before := e.Dpm(i, 0)
	e.EnableDpm(i, false)
	after := e.Dpm(i, 0)
	if before != after {
		t.Errorf("disabling DPM changed the reported peak: before=%v after=%v", before, after)
	}
}

func TestUnroutedStripOutputsSilence(t *testing.T) {
	e, h, idx := newChannelFixture(t, 1)
	i := idx[0]
	inA, inB, _ := e.StripInputPorts(i)
	outA, outB, _ := e.StripOutputPorts(i)

	e.SetLevel(i, 1.0)
	e.SetInRouted(i, false)

	loud := make([]float32, testFrames)
	for k := range loud {
		loud[k] = 1.0
	}
	h.SetInput(inA, loud)
	h.SetInput(inB, loud)
	h.SetProcessCallback(e.ProcessFunc())
	h.Process(testFrames)

	a := h.Output(outA)
	b := h.Output(outB)
	for i, v := range a {
		if v != 0 {
			t.Fatalf("unrouted strip output[%d]: got %v, want 0", i, v)
		}
	}
	for i, v := range b {
		if v != 0 {
			t.Fatalf("unrouted strip output[%d]: got %v, want 0", i, v)
		}
	}
}

func TestRemoveMainStripRejected(t *testing.T) {
	h := fakehost.New(testRate, testFrames)
	e := NewEngine(Mixbus, testRate, testFrames)
	if err := e.RemoveStrip(0, h); err != errMainStrip {
		t.Errorf("RemoveStrip(0) in Mixbus mode: got %v, want errMainStrip", err)
	}
}

func TestAddStripReusesFreedSlot(t *testing.T) {
	h := fakehost.New(testRate, testFrames)
	e := NewEngine(Channel, testRate, testFrames)

	idx0, _ := e.AddStrip(h)
	idx1, _ := e.AddStrip(h)
	if err := e.RemoveStrip(idx0, h); err != nil {
		t.Fatalf("RemoveStrip: %v", err)
	}
	idx2, err := e.AddStrip(h)
	if err != nil {
		t.Fatalf("AddStrip after free: %v", err)
	}
	if idx2 != idx0 {
		t.Errorf("AddStrip: expected to reuse freed slot %d, got %d", idx0, idx2)
	}
	if idx1 == idx2 {
		t.Errorf("unexpected slot collision: idx1=%d idx2=%d", idx1, idx2)
	}
}
