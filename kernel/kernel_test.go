// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package kernel

import (
	"errors"
	"math/rand/v2"
	"slices"
	"testing"
)

// smallConfig uses tiny tiles so that a few dozen keys span several
// workgroups.
func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.HistogramWorkgroupSize = 4
	cfg.HistogramBlockRows = 2
	cfg.ScatterWorkgroupSize = 4
	cfg.ScatterBlockRows = 3
	cfg.SubgroupSize = 2
	cfg.SpinBudget = 64
	return cfg
}

// runStages executes every stage the way the orchestrator does, running the
// workgroups of each dispatch sequentially in the given order.
func runStages(b *Buffers, order func(uint32) []uint32) {
	n := b.Info.NumKeys.Load()
	cfg := b.Config
	launch := func(groups uint32, fn func(uint32) bool) {
		ids := make([]uint32, groups)
		for i := range ids {
			ids[i] = uint32(i)
		}
		if order != nil {
			ids = order(groups)
		}
		for _, wg := range ids {
			fn(wg)
		}
	}

	launch(cfg.ZeroWorkgroups(n), func(wg uint32) bool { Zero(b, wg); return true })
	launch(cfg.HistogramBlocks(n), func(wg uint32) bool { Histogram(b, wg); return true })
	launch(cfg.Passes, func(wg uint32) bool { Prefix(b, wg); return true })
	for pass := range cfg.Passes {
		fn := func(wg uint32) bool { return ScatterEven(b, wg) }
		if pass%2 == 1 {
			fn = func(wg uint32) bool { return ScatterOdd(b, wg) }
		}
		launch(cfg.ScatterBlocks(n), fn)
	}
}

func sortWith(t *testing.T, cfg Config, keys, payloads []uint32) ([]uint32, []uint32) {
	t.Helper()
	b := NewBuffers(cfg, uint32(len(keys)))
	if err := b.Load(keys, payloads); err != nil {
		t.Fatalf("Load: %v", err)
	}
	runStages(b, nil)
	if b.Info.Failed() {
		t.Fatal("sort_failed set on an ascending launch")
	}
	out := b.Result()
	n := len(keys)
	return slices.Clone(b.Keys[out][:n]), slices.Clone(b.Payloads[out][:n])
}

// referenceSort is a stable sort on the low keyBits bits of each key.
func referenceSort(keys, payloads []uint32, keyBits uint32) ([]uint32, []uint32) {
	idx := make([]int, len(keys))
	for i := range idx {
		idx[i] = i
	}
	mask := uint32(1<<keyBits - 1)
	if keyBits >= 32 {
		mask = ^uint32(0)
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		ka, kb := keys[a]&mask, keys[b]&mask
		switch {
		case ka < kb:
			return -1
		case ka > kb:
			return 1
		}
		return 0
	})
	k := make([]uint32, len(keys))
	p := make([]uint32, len(keys))
	for i, j := range idx {
		k[i] = keys[j]
		p[i] = payloads[j]
	}
	return k, p
}

// =============================================================================
// Config Tests
// =============================================================================

func TestConfig_DerivedSizes(t *testing.T) {
	tests := []struct {
		name          string
		cfg           Config
		n             uint32
		scatterBlocks uint32
		histoBlocks   uint32
		padded        uint32
		words         uint32
	}{
		{"default empty", DefaultConfig(), 0, 0, 0, 0, 4 * 256},
		{"default one key", DefaultConfig(), 1, 1, 1, 3840, 5 * 256},
		{"default full tile", DefaultConfig(), 3840, 1, 1, 3840, 5 * 256},
		{"default tile plus one", DefaultConfig(), 3841, 2, 2, 7680, 6 * 256},
		{"small tiles", smallConfig(), 13, 2, 3, 24, 6 * 256},
		{"small tiles exact", smallConfig(), 24, 2, 3, 24, 6 * 256},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.ScatterBlocks(tt.n); got != tt.scatterBlocks {
				t.Errorf("ScatterBlocks(%d) = %d, want %d", tt.n, got, tt.scatterBlocks)
			}
			if got := tt.cfg.HistogramBlocks(tt.n); got != tt.histoBlocks {
				t.Errorf("HistogramBlocks(%d) = %d, want %d", tt.n, got, tt.histoBlocks)
			}
			if got := tt.cfg.PaddedSize(tt.n); got != tt.padded {
				t.Errorf("PaddedSize(%d) = %d, want %d", tt.n, got, tt.padded)
			}
			if got := tt.cfg.HistogramWords(tt.n); got != tt.words {
				t.Errorf("HistogramWords(%d) = %d, want %d", tt.n, got, tt.words)
			}
			if padded := tt.cfg.PaddedSize(tt.n); padded%tt.cfg.ScatterBlockKeys() != 0 {
				t.Errorf("padded size %d is not a whole number of scatter tiles", padded)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"default", func(*Config) {}, true},
		{"16-bit keys", func(c *Config) { c.Passes = 2 }, true},
		{"three passes", func(c *Config) { c.Passes = 3 }, false},
		{"zero histogram rows", func(c *Config) { c.HistogramBlockRows = 0 }, false},
		{"zero scatter lanes", func(c *Config) { c.ScatterWorkgroupSize = 0 }, false},
		{"prefix lanes", func(c *Config) { c.PrefixWorkgroupSize = 256 }, false},
		{"subgroup not dividing", func(c *Config) { c.SubgroupSize = 24 }, false},
		{"zero subgroup", func(c *Config) { c.SubgroupSize = 0 }, false},
		{"zero spin budget", func(c *Config) { c.SpinBudget = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

// =============================================================================
// Status Word Tests
// =============================================================================

func TestStatus_RoundTrip(t *testing.T) {
	for pass := range uint32(MaxPasses) {
		for _, s := range []PartitionStatus{StatusInvalid, StatusAggregate, StatusPrefix} {
			for _, count := range []uint32{0, 1, 12345, CountMask} {
				gotS, gotC := UnpackStatus(PackStatus(s, count, pass), pass)
				if gotS != s || gotC != count {
					t.Errorf("pass %d: unpack(pack(%v, %d)) = (%v, %d)", pass, s, count, gotS, gotC)
				}
			}
		}
	}
}

func TestStatus_StaleWordsDecodeInvalid(t *testing.T) {
	if s, _ := UnpackStatus(0, 0); s != StatusInvalid {
		t.Errorf("zeroed word in pass 0 = %v, want invalid", s)
	}
	for pass := uint32(1); pass < MaxPasses; pass++ {
		stale := PackStatus(StatusPrefix, 77, pass-1)
		if s, _ := UnpackStatus(stale, pass); s != StatusInvalid {
			t.Errorf("prefix of pass %d read in pass %d = %v, want invalid", pass-1, pass, s)
		}
	}
}

func TestDigit(t *testing.T) {
	key := uint32(0xA1B2C3D4)
	want := []uint32{0xD4, 0xC3, 0xB2, 0xA1}
	for pass, w := range want {
		if got := Digit(key, uint32(pass)); got != w {
			t.Errorf("Digit(%#x, %d) = %#x, want %#x", key, pass, got, w)
		}
	}
}

// =============================================================================
// Stage Tests
// =============================================================================

func TestHistogram_CountsAndSentinels(t *testing.T) {
	cfg := smallConfig()
	keys := []uint32{0x0101, 0x0201, 0x0302, 0x0101, 0x00FF}
	b := NewBuffers(cfg, 20)
	// Stale data from an earlier, larger sort.
	for i := range b.Keys[BufferA] {
		b.Keys[BufferA][i] = 0x42
	}
	if err := b.Load(keys, nil); err != nil {
		t.Fatal(err)
	}

	n := uint32(len(keys))
	for wg := range cfg.ZeroWorkgroups(n) {
		Zero(b, wg)
	}
	for wg := range cfg.HistogramBlocks(n) {
		Histogram(b, wg)
	}

	padded := cfg.PaddedSize(n)
	for i := n; i < padded; i++ {
		if b.Keys[BufferA][i] != SentinelKey {
			t.Errorf("key[%d] = %#x, want sentinel", i, b.Keys[BufferA][i])
		}
	}

	pad := padded - n
	row0 := b.HistogramRow(0)
	if row0[0x01] != 3 || row0[0x02] != 1 || row0[0xFF] != 1+pad {
		t.Errorf("pass 0 histogram: [1]=%d [2]=%d [255]=%d", row0[0x01], row0[0x02], row0[0xFF])
	}
	row1 := b.HistogramRow(1)
	if row1[0x00] != 1 || row1[0x01] != 2 || row1[0x02] != 1 || row1[0x03] != 1 {
		t.Errorf("pass 1 histogram: %v", row1[:4])
	}
	for pass := range cfg.Passes {
		var total uint32
		for _, c := range b.HistogramRow(pass) {
			total += c
		}
		if total != padded {
			t.Errorf("pass %d total = %d, want padded size %d", pass, total, padded)
		}
	}
}

func TestPrefix_ExclusiveScan(t *testing.T) {
	cfg := DefaultConfig()
	b := NewBuffers(cfg, 1)
	rng := rand.New(rand.NewPCG(1, 2))

	var want [MaxPasses][RadixSize]uint32
	for pass := range uint32(MaxPasses) {
		var sum uint32
		for d := range uint32(RadixSize) {
			c := rng.Uint32N(1000)
			b.Histograms[pass*RadixSize+d].Store(c)
			want[pass][d] = sum
			sum += c
		}
	}

	for wg := range cfg.Passes {
		Prefix(b, wg)
	}
	for pass := range uint32(MaxPasses) {
		if got := b.HistogramRow(pass); got != want[pass] {
			t.Errorf("pass %d prefix mismatch: got[:4]=%v want[:4]=%v", pass, got[:4], want[pass][:4])
		}
	}
}

// =============================================================================
// End-to-End Kernel Tests
// =============================================================================

func TestSort_Scenarios(t *testing.T) {
	tests := []struct {
		name         string
		keys         []uint32
		payloads     []uint32
		wantKeys     []uint32
		wantPayloads []uint32
	}{
		{
			name: "empty",
		},
		{
			name:         "three keys",
			keys:         []uint32{3, 1, 2},
			payloads:     []uint32{10, 20, 30},
			wantKeys:     []uint32{1, 2, 3},
			wantPayloads: []uint32{20, 30, 10},
		},
		{
			name:         "equal keys keep input order",
			keys:         []uint32{5, 5, 5, 1},
			payloads:     []uint32{0, 1, 2, 3},
			wantKeys:     []uint32{1, 5, 5, 5},
			wantPayloads: []uint32{3, 0, 1, 2},
		},
		{
			name:         "sentinel-valued user key",
			keys:         []uint32{SentinelKey, 0, SentinelKey},
			payloads:     []uint32{7, 8, 9},
			wantKeys:     []uint32{0, SentinelKey, SentinelKey},
			wantPayloads: []uint32{8, 7, 9},
		},
	}

	for _, tt := range tests {
		for _, cfg := range []Config{DefaultConfig(), smallConfig()} {
			t.Run(tt.name, func(t *testing.T) {
				gotK, gotP := sortWith(t, cfg, tt.keys, tt.payloads)
				if !slices.Equal(gotK, tt.wantKeys) {
					t.Errorf("keys = %v, want %v", gotK, tt.wantKeys)
				}
				if !slices.Equal(gotP, tt.wantPayloads) {
					t.Errorf("payloads = %v, want %v", gotP, tt.wantPayloads)
				}
			})
		}
	}
}

func TestSort_MatchesStableReference(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		n     int
		limit uint32
	}{
		{"multi-block small tiles", smallConfig(), 97, 0},
		{"few distinct keys", smallConfig(), 120, 4},
		{"default tiles", DefaultConfig(), 9000, 0},
		{"subgroup equals workgroup", func() Config {
			c := smallConfig()
			c.SubgroupSize = c.ScatterWorkgroupSize
			return c
		}(), 50, 8},
	}

	rng := rand.New(rand.NewPCG(7, 11))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys := make([]uint32, tt.n)
			payloads := make([]uint32, tt.n)
			for i := range keys {
				if tt.limit > 0 {
					keys[i] = rng.Uint32N(tt.limit)
				} else {
					keys[i] = rng.Uint32()
				}
				payloads[i] = uint32(i)
			}

			gotK, gotP := sortWith(t, tt.cfg, keys, payloads)
			wantK, wantP := referenceSort(keys, payloads, tt.cfg.KeyBits())
			if !slices.Equal(gotK, wantK) {
				t.Error("keys differ from the stable reference")
			}
			if !slices.Equal(gotP, wantP) {
				t.Error("payloads differ from the stable reference")
			}
		})
	}
}

func TestSort_SixteenBitKeys(t *testing.T) {
	cfg := smallConfig()
	cfg.Passes = 2

	keys := []uint32{0x0001_0002, 0x0005_0001, 0x0000_0002, 0x0009_0000}
	payloads := []uint32{0, 1, 2, 3}
	gotK, gotP := sortWith(t, cfg, keys, payloads)

	// Only the low 16 bits order the keys; ties keep input order.
	wantP := []uint32{3, 1, 0, 2}
	if !slices.Equal(gotP, wantP) {
		t.Errorf("payloads = %v, want %v", gotP, wantP)
	}
	if gotK[0] != 0x0009_0000 {
		t.Errorf("keys[0] = %#x, want 0x90000", gotK[0])
	}
}

func TestSort_ReusedBuffersIgnoreStalePadding(t *testing.T) {
	cfg := smallConfig()
	b := NewBuffers(cfg, 60)

	large := make([]uint32, 60)
	for i := range large {
		large[i] = uint32(i)
	}
	if err := b.Load(large, nil); err != nil {
		t.Fatal(err)
	}
	runStages(b, nil)

	small := []uint32{9, 3, 6}
	if err := b.Load(small, nil); err != nil {
		t.Fatal(err)
	}
	runStages(b, nil)

	out := b.Result()
	if got := b.Keys[out][:3]; !slices.Equal(got, []uint32{3, 6, 9}) {
		t.Errorf("keys = %v, want [3 6 9]", got)
	}
	if got := b.Payloads[out][:3]; !slices.Equal(got, []uint32{1, 2, 0}) {
		t.Errorf("payloads = %v, want [1 2 0]", got)
	}
}

func TestSort_Idempotent(t *testing.T) {
	cfg := smallConfig()
	keys := []uint32{8, 2, 2, 7, 1, 8, 0, 3, 3, 3, 9, 4, 4}
	payloads := make([]uint32, len(keys))
	for i := range payloads {
		payloads[i] = uint32(i)
	}

	k1, p1 := sortWith(t, cfg, keys, payloads)
	k2, p2 := sortWith(t, cfg, k1, p1)
	if !slices.Equal(k1, k2) || !slices.Equal(p1, p2) {
		t.Errorf("second sort changed the output: %v/%v -> %v/%v", k1, p1, k2, p2)
	}
}

func TestLoad_Errors(t *testing.T) {
	b := NewBuffers(smallConfig(), 4)
	if err := b.Load(make([]uint32, 5), nil); err == nil {
		t.Error("Load over capacity: want error")
	}
	if err := b.Load(make([]uint32, 3), make([]uint32, 2)); err == nil {
		t.Error("Load with short payloads: want error")
	}
}

// =============================================================================
// Look-back Failure Tests
// =============================================================================

func reversed(groups uint32) []uint32 {
	ids := make([]uint32, groups)
	for i := range ids {
		ids[i] = groups - 1 - uint32(i)
	}
	return ids
}

func TestScatter_StarvedLookBackFails(t *testing.T) {
	cfg := smallConfig()
	cfg.SpinBudget = 8

	keys := make([]uint32, 40)
	for i := range keys {
		keys[i] = uint32(len(keys) - i)
	}
	b := NewBuffers(cfg, uint32(len(keys)))
	if err := b.Load(keys, nil); err != nil {
		t.Fatal(err)
	}

	// The last workgroup runs first and can never see its predecessors.
	runStages(b, reversed)

	if !b.Info.Failed() {
		t.Fatal("sort_failed not set after a starved look-back")
	}
}

func TestScatter_NoWritesAfterFailure(t *testing.T) {
	cfg := smallConfig()
	keys := []uint32{4, 3, 2, 1}
	b := NewBuffers(cfg, uint32(len(keys)))
	if err := b.Load(keys, nil); err != nil {
		t.Fatal(err)
	}
	n := uint32(len(keys))
	for wg := range cfg.ZeroWorkgroups(n) {
		Zero(b, wg)
	}
	for wg := range cfg.HistogramBlocks(n) {
		Histogram(b, wg)
	}
	for wg := range cfg.Passes {
		Prefix(b, wg)
	}

	before := slices.Clone(b.Keys[BufferB])
	b.Info.SortFailed.Store(1)
	for wg := range cfg.ScatterBlocks(n) {
		if ScatterEven(b, wg) {
			t.Errorf("workgroup %d reported success after failure", wg)
		}
	}
	if !slices.Equal(before, b.Keys[BufferB]) {
		t.Error("scatter wrote to the destination after sort_failed")
	}
}

func TestZero_ResetsInfo(t *testing.T) {
	cfg := smallConfig()
	b := NewBuffers(cfg, 10)
	if err := b.Load([]uint32{1, 2}, nil); err != nil {
		t.Fatal(err)
	}
	b.Info.SortFailed.Store(1)
	b.Info.EvenPass.Store(1)
	b.Info.OddPass.Store(1)
	for i := range b.Histograms {
		b.Histograms[i].Store(99)
	}

	n := b.Info.NumKeys.Load()
	for wg := range cfg.ZeroWorkgroups(n) {
		Zero(b, wg)
	}

	w := b.Info.Words()
	if w[InfoSortFailed] != 0 || w[InfoEvenPass] != 0 || w[InfoOddPass] != 0 {
		t.Errorf("info after zero = %v", w)
	}
	for i := range cfg.HistogramWords(n) {
		if v := b.Histograms[i].Load(); v != 0 {
			t.Fatalf("histogram word %d = %d, want 0", i, v)
		}
	}
}

func TestScatter_PassCountersAdvance(t *testing.T) {
	cfg := smallConfig()
	b := NewBuffers(cfg, 8)
	if err := b.Load([]uint32{1, 2, 3}, nil); err != nil {
		t.Fatal(err)
	}
	runStages(b, nil)

	// After two pass pairs the counters are back at the start.
	if even, odd := b.Info.EvenPass.Load(), b.Info.OddPass.Load(); even != 0 || odd != 1 {
		t.Errorf("even_pass=%d odd_pass=%d, want 0 and 1", even, odd)
	}
}

func TestWorkgroupMemory_ShapePerConfig(t *testing.T) {
	small := smallConfig()
	def := DefaultConfig()

	m := acquireMemory(small)
	if got, want := len(m.keys), int(small.ScatterBlockKeys()); got != want {
		t.Errorf("small tile keys = %d, want %d", got, want)
	}
	if got, want := len(m.digits), int(small.ScatterWorkgroupSize); got != want {
		t.Errorf("small lane arrays = %d, want %d", got, want)
	}
	releaseMemory(small, m)

	m = acquireMemory(def)
	defer releaseMemory(def, m)
	if got, want := len(m.ranks), int(def.ScatterBlockKeys()); got != want {
		t.Errorf("default tile ranks = %d, want %d", got, want)
	}
}
