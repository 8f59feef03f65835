package codec

import (
	"crypto/sha256"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/solsignal/internal/models"
)

func key(b byte) models.Pubkey {
	var k models.Pubkey
	for i := range k {
		k[i] = b + byte(i)
	}
	return k
}

func sampleSignal(index uint64) models.Signal {
	return models.Signal{
		Agent:         key(7),
		Index:         index,
		Asset:         "SOL/USDC",
		Direction:     models.Short,
		Confidence:    72,
		EntryPrice:    145_250_000,
		TargetPrice:   141_000_000,
		StopLoss:      149_000_000,
		TimeHorizon:   1_760_000_000,
		ReasoningHash: models.ReasoningHash("Momentum continuation (bearish)"),
		CreatedAt:     1_759_971_200,
		Bump:          254,
	}
}

func sampleProfile() models.AgentProfile {
	return models.AgentProfile{
		Authority:        key(1),
		Name:             "batman",
		TotalSignals:     12,
		CorrectSignals:   7,
		IncorrectSignals: 3,
		ExpiredSignals:   1,
		AccuracyBps:      7000,
		ReputationScore:  700,
		CreatedAt:        1_700_000_000,
		Bump:             251,
	}
}

func TestLayoutSizes(t *testing.T) {
	assert.Equal(t, 65, MinRegistrySize)
	assert.Equal(t, 79, MinAgentProfileSize)
	assert.Equal(t, 137, MinSignalSize)
	assert.Equal(t, 111, MaxAgentProfileSize)
	assert.Equal(t, 169, MaxSignalSize)
}

func TestDiscriminatorsAreDistinct(t *testing.T) {
	seen := map[[DiscriminatorSize]byte]models.Kind{}
	for _, k := range models.Kinds {
		d := Discriminator(k)
		prev, dup := seen[d]
		require.False(t, dup, "%s shares a discriminator with %s", k, prev)
		seen[d] = k
	}

	sum := sha256.Sum256([]byte("account:Signal"))
	d := Discriminator(models.KindSignal)
	assert.Equal(t, sum[:DiscriminatorSize], d[:])
}

func TestRoundTrip(t *testing.T) {
	reg := models.Registry{Authority: key(3), TotalSignals: 41, TotalAgents: 5, SignalFee: 0, Bump: 255}
	b := EncodeRegistry(reg)
	assert.Len(t, b, MinRegistrySize)
	gotReg, err := DecodeRegistry(b)
	require.NoError(t, err)
	assert.Equal(t, reg, gotReg)

	profile := sampleProfile()
	b, err = EncodeAgentProfile(profile)
	require.NoError(t, err)
	assert.Len(t, b, MinAgentProfileSize+len(profile.Name))
	gotProfile, err := DecodeAgentProfile(b)
	require.NoError(t, err)
	assert.Equal(t, profile, gotProfile)

	for _, sig := range []models.Signal{
		sampleSignal(42),
		func() models.Signal {
			s := sampleSignal(43)
			s.Direction = models.Long
			s.Asset = ""
			s.Resolved = true
			s.Outcome = models.Expired
			s.ResolutionPrice = 1
			return s
		}(),
		func() models.Signal {
			s := sampleSignal(44)
			s.Asset = strings.Repeat("Z", models.MaxAssetLen)
			s.Confidence = 100
			s.Resolved = true
			s.Outcome = models.Correct
			s.ResolutionPrice = 140_000_000
			return s
		}(),
	} {
		b, err := EncodeSignal(sig)
		require.NoError(t, err)
		got, err := DecodeSignal(b)
		require.NoError(t, err)
		assert.Equal(t, sig, got)
	}
}

func TestDecodeToleratesTrailingPadding(t *testing.T) {
	sig := sampleSignal(1)
	b, err := EncodeSignal(sig)
	require.NoError(t, err)
	padded := make([]byte, MaxSignalSize)
	copy(padded, b)

	got, err := DecodeSignal(padded)
	require.NoError(t, err)
	assert.Equal(t, sig, got)
}

func TestDecodeVariant(t *testing.T) {
	b, err := Encode(sampleProfile())
	require.NoError(t, err)

	rec, err := Decode(b)
	require.NoError(t, err)
	profile, ok := rec.(models.AgentProfile)
	require.True(t, ok, "got %T", rec)
	assert.Equal(t, "batman", profile.Name)

	k, ok := KindOf(b)
	require.True(t, ok)
	assert.Equal(t, models.KindAgentProfile, k)

	_, err = Decode(make([]byte, 200))
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestDecodeMalformed(t *testing.T) {
	valid, err := EncodeSignal(sampleSignal(9))
	require.NoError(t, err)

	// offsets within a signal encoding of asset "SOL/USDC"
	const (
		assetLenOff   = DiscriminatorSize + 32 + 8
		directionOff  = assetLenOff + 4 + 8
		confidenceOff = directionOff + 1
		resolvedOff   = directionOff + 2 + 32 + 32 + 8
		outcomeOff    = resolvedOff + 1
	)

	mutate := func(f func(b []byte) []byte) []byte {
		b := append([]byte(nil), valid...)
		return f(b)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"shorter than minimum", valid[:MinSignalSize-1]},
		{"wrong discriminator", mutate(func(b []byte) []byte { b[0] ^= 0xff; return b })},
		{"registry bytes", EncodeRegistry(models.Registry{})},
		{"asset length past end", mutate(func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[assetLenOff:], 30)
			return b[:MinSignalSize+8]
		})},
		{"asset longer than 32", mutate(func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[assetLenOff:], 33)
			return append(b, make([]byte, 64)...)
		})},
		{"invalid utf8 asset", mutate(func(b []byte) []byte { b[assetLenOff+4] = 0xff; return b })},
		{"direction out of range", mutate(func(b []byte) []byte { b[directionOff] = 2; return b })},
		{"confidence above 100", mutate(func(b []byte) []byte { b[confidenceOff] = 101; return b })},
		{"resolved not boolean", mutate(func(b []byte) []byte { b[resolvedOff] = 2; return b })},
		{"outcome out of range", mutate(func(b []byte) []byte { b[outcomeOff] = 4; return b })},
		{"resolved without outcome", mutate(func(b []byte) []byte { b[resolvedOff] = 1; return b })},
		{"outcome without resolved", mutate(func(b []byte) []byte { b[outcomeOff] = 1; return b })},
		{"resolved with zero resolution price", mutate(func(b []byte) []byte { b[resolvedOff] = 1; b[outcomeOff] = 1; return b })},
		{"pending with resolution price", mutate(func(b []byte) []byte { b[outcomeOff+1] = 5; return b })},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeSignal(tt.data)
			assert.ErrorIs(t, err, ErrMalformedRecord)
		})
	}
}

func TestDecodeAgentProfileNameBounds(t *testing.T) {
	b, err := EncodeAgentProfile(sampleProfile())
	require.NoError(t, err)
	binary.LittleEndian.PutUint32(b[DiscriminatorSize+32:], 40)
	b = append(b, make([]byte, 64)...)

	_, err = DecodeAgentProfile(b)
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestEncodeRejectsInvalidRecords(t *testing.T) {
	sig := sampleSignal(1)
	sig.Asset = strings.Repeat("A", 33)
	_, err := EncodeSignal(sig)
	assert.Error(t, err)

	p := sampleProfile()
	p.Name = strings.Repeat("n", 33)
	_, err = EncodeAgentProfile(p)
	assert.Error(t, err)

	unpriced := sampleSignal(2)
	unpriced.Resolved = true
	unpriced.Outcome = models.Correct
	_, err = EncodeSignal(unpriced)
	assert.Error(t, err, "resolved signal needs a resolution price")

	priced := sampleSignal(3)
	priced.ResolutionPrice = 5
	_, err = EncodeSignal(priced)
	assert.Error(t, err, "pending signal must not carry a resolution price")

	_, err = Encode(nil)
	assert.Error(t, err)
}

func TestScanSignalsToleratesMalformed(t *testing.T) {
	var accounts []models.Account
	for i := uint64(1); i <= 9; i++ {
		b, err := EncodeSignal(sampleSignal(i))
		require.NoError(t, err)
		accounts = append(accounts, models.Account{Address: key(byte(i)), Data: b})
	}
	truncated := append([]byte(nil), accounts[0].Data[:MinSignalSize-10]...)
	accounts = append(accounts, models.Account{Address: key(99), Data: truncated})

	profile, err := EncodeAgentProfile(sampleProfile())
	require.NoError(t, err)
	accounts = append(accounts,
		models.Account{Address: key(100), Data: profile},
		models.Account{Address: key(101), Data: EncodeRegistry(models.Registry{})},
	)

	res := ScanSignals(accounts)
	assert.Len(t, res.Records, 9)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, key(1), res.Records[0].Address)
	assert.Equal(t, uint64(1), res.Records[0].Record.Index)

	agents := ScanAgentProfiles(accounts)
	require.Len(t, agents.Records, 1)
	assert.Equal(t, "batman", agents.Records[0].Record.Name)
	assert.Equal(t, 0, agents.Failed)
}
