package preset

import "github.com/pkg/errors"

// tag numbers, matching original_source/sdrbase/settings/preset.cpp.
const (
	tagGroup                 = 1
	tagDescription           = 2
	tagCenterFrequency       = 3
	tagShowScope             = 4
	tagLayout                = 5
	tagSpectrumConfig        = 6
	tagDCOffsetCorrection    = 7
	tagIQImbalanceCorrection = 8
	tagScopeConfig           = 9
	tagSource                = 10
	tagSourceGeneralConfig   = 11
	tagSourceConfig          = 12
	tagDemodCount            = 100
	tagDemodBase             = 101 // tagDemodBase+2i is a demod name, +2i+1 is its config
)

// DemodConfig is one entry in a preset's per-demodulator configuration
// list, carried opaquely.
type DemodConfig struct {
	Demod  string
	Config []byte
}

// Preset is the persisted configuration record described in spec §6:
// everything needed to reproduce one operating setup of the engine
// and the components around it. The engine core never interprets the
// opaque blobs; it only carries them.
type Preset struct {
	Group           string
	Description     string
	CenterFrequency uint64

	DCOffsetCorrection    bool
	IQImbalanceCorrection bool

	ShowScope bool
	Layout    []byte

	SpectrumConfig []byte
	ScopeConfig    []byte

	Source              string
	SourceGeneralConfig []byte
	SourceConfig        []byte

	DemodConfigs []DemodConfig
}

// Default returns a Preset with the same defaults the engine and its
// satellite components assume when no preset has been loaded.
func Default() Preset {
	return Preset{
		Group:                 "default",
		Description:           "no name",
		DCOffsetCorrection:    true,
		IQImbalanceCorrection: true,
		ShowScope:             true,
	}
}

// Serialize encodes p into the TLV blob described in spec §6.
func Serialize(p Preset) []byte {
	s := newSerializer()
	s.writeString(tagGroup, p.Group)
	s.writeString(tagDescription, p.Description)
	s.writeU64(tagCenterFrequency, p.CenterFrequency)
	s.writeBool(tagShowScope, p.ShowScope)
	s.writeBlob(tagLayout, p.Layout)
	s.writeBlob(tagSpectrumConfig, p.SpectrumConfig)
	s.writeBool(tagDCOffsetCorrection, p.DCOffsetCorrection)
	s.writeBool(tagIQImbalanceCorrection, p.IQImbalanceCorrection)
	s.writeBlob(tagScopeConfig, p.ScopeConfig)
	s.writeString(tagSource, p.Source)
	s.writeBlob(tagSourceGeneralConfig, p.SourceGeneralConfig)
	s.writeBlob(tagSourceConfig, p.SourceConfig)

	s.writeS32(tagDemodCount, int32(len(p.DemodConfigs)))
	for i, demod := range p.DemodConfigs {
		s.writeString(uint32(tagDemodBase+i*2), demod.Demod)
		s.writeBlob(uint32(tagDemodBase+i*2+1), demod.Config)
	}

	return s.final()
}

// Deserialize decodes a TLV blob produced by Serialize. On a version
// mismatch or a malformed blob it returns Default() alongside a
// non-nil error, matching original_source's resetToDefaults-on-failure
// behavior (spec §6, §8).
func Deserialize(data []byte) (Preset, error) {
	d := newDeserializer(data)

	if !d.isValid() {
		return Default(), errors.Wrap(ErrUnsupportedVersion, "truncated preset blob")
	}
	if d.version != codecVersion {
		return Default(), errors.Wrapf(ErrUnsupportedVersion, "version %d", d.version)
	}

	def := Default()
	p := Preset{
		Group:                 d.readString(tagGroup, def.Group),
		Description:           d.readString(tagDescription, def.Description),
		CenterFrequency:       d.readU64(tagCenterFrequency, def.CenterFrequency),
		ShowScope:             d.readBool(tagShowScope, def.ShowScope),
		Layout:                d.readBlob(tagLayout),
		SpectrumConfig:        d.readBlob(tagSpectrumConfig),
		DCOffsetCorrection:    d.readBool(tagDCOffsetCorrection, def.DCOffsetCorrection),
		IQImbalanceCorrection: d.readBool(tagIQImbalanceCorrection, def.IQImbalanceCorrection),
		ScopeConfig:           d.readBlob(tagScopeConfig),
		Source:                d.readString(tagSource, def.Source),
		SourceGeneralConfig:   d.readBlob(tagSourceGeneralConfig),
		SourceConfig:          d.readBlob(tagSourceConfig),
	}

	demodCount := d.readS32(tagDemodCount, 0)
	for i := int32(0); i < demodCount; i++ {
		p.DemodConfigs = append(p.DemodConfigs, DemodConfig{
			Demod:  d.readString(uint32(tagDemodBase+i*2), "unknown-demod"),
			Config: d.readBlob(uint32(tagDemodBase + i*2 + 1)),
		})
	}

	return p, nil
}
