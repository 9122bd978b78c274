package config

// Builder provides a fluent interface for constructing a Config,
// mirroring the teacher's config.Builder shape.
type Builder struct {
	cfg Config
	err error
}

// NewBuilder starts from Default().
func NewBuilder() *Builder {
	return &Builder{cfg: Default()}
}

// FromPreset loads one of the named presets as the starting point.
func (b *Builder) FromPreset(preset NetworkType) *Builder {
	if b.err != nil {
		return b
	}
	switch preset {
	case Mainnet:
		b.cfg = MainnetConfig
	case Testnet:
		b.cfg = TestnetConfig
	case Local:
		b.cfg = LocalConfig
	default:
		b.err = unknownPresetError(preset)
	}
	return b
}

// WithSampleSize sets K. Alpha is a fraction of the sampled peers, so it
// is left unchanged.
func (b *Builder) WithSampleSize(k int) *Builder {
	if b.err != nil {
		return b
	}
	if k < 1 {
		b.err = invalidParamError("K", k)
		return b
	}
	b.cfg.K = k
	return b
}

// WithQuorum sets alpha, the fraction of sampled peers required to agree.
func (b *Builder) WithQuorum(alpha float64) *Builder {
	if b.err != nil {
		return b
	}
	if alpha <= 0.5 || alpha > 1 {
		b.err = invalidParamError("Alpha", alpha)
		return b
	}
	b.cfg.Alpha = alpha
	return b
}

// WithBeta sets the consecutive-success finality threshold.
func (b *Builder) WithBeta(beta uint32) *Builder {
	if b.err != nil {
		return b
	}
	if beta < 1 {
		b.err = invalidParamError("Beta", beta)
		return b
	}
	b.cfg.Beta = beta
	return b
}

// WithHops sets the circuit hop count, validated against [MinHops,MaxHops].
func (b *Builder) WithHops(hops int) *Builder {
	if b.err != nil {
		return b
	}
	if hops < b.cfg.MinHops || hops > b.cfg.MaxHops {
		b.err = invalidParamError("Hops", hops)
		return b
	}
	b.cfg.DefaultHops = hops
	return b
}

// Build validates and returns the final Config.
func (b *Builder) Build() (Config, error) {
	if b.err != nil {
		return Config{}, b.err
	}
	if err := b.cfg.Validate(); err != nil {
		return Config{}, err
	}
	return b.cfg, nil
}
