package intake

const DefaultSuffix = ".json"

type Config struct {
	Dir      string   `configKey:"dir" configUsage:"Directory with configuration files."`
	Suffixes []string `configKey:"suffixes" configUsage:"Suffixes of configuration files, \".json\", \".yaml\" and \".yml\" are supported." validate:"required,min=1,dive,oneof=.json .yaml .yml"`
}

func NewConfig() Config {
	return Config{Suffixes: []string{DefaultSuffix}}
}
