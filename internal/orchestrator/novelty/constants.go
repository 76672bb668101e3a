package novelty

const (
	MetricMAD   = "mad"
	MetricPHash = "phash"

	MaxScore = 255.0

	// Caption band thumbnail used by the mad metric.
	ThumbWidth  = 64
	ThumbHeight = 20

	DefaultThreshold = 2.5
	DefaultMaxSkip   = 10
	DefaultRegion    = 1.0 / 3.0
)

// Config tunes the gate. Disabled gates accept every frame but still score it.
type Config struct {
	Enabled   bool
	Metric    string
	Threshold float64
	MaxSkip   int
	Region    float64 // bottom fraction of the frame compared
}

func (c Config) withDefaults() Config {
	if c.MaxSkip <= 0 {
		c.MaxSkip = DefaultMaxSkip
	}
	if c.Region <= 0 || c.Region > 1 {
		c.Region = DefaultRegion
	}
	if c.Metric == "" {
		c.Metric = MetricMAD
	}
	return c
}

// DefaultConfig returns an enabled mad gate with the stock threshold.
func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		Metric:    MetricMAD,
		Threshold: DefaultThreshold,
		MaxSkip:   DefaultMaxSkip,
		Region:    DefaultRegion,
	}
}
