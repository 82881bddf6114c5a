package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Bot options and the log level apply in place; everything else needs a
// restart and is only reported.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	BotChanged bool
	NewBot     BotConfig

	// RestartRequired lists changed sections that only take effect after a
	// restart, in schema order.
	RestartRequired []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Bot != new.Bot {
		d.BotChanged = true
		d.NewBot = new.Bot
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if old.Discord != new.Discord {
		d.RestartRequired = append(d.RestartRequired, "discord")
	}
	if old.Data != new.Data {
		d.RestartRequired = append(d.RestartRequired, "data")
	}
	if !corpusEqual(old.Corpus, new.Corpus) {
		d.RestartRequired = append(d.RestartRequired, "corpus")
	}
	if old.Markov != new.Markov {
		d.RestartRequired = append(d.RestartRequired, "markov")
	}
	if old.Index != new.Index {
		d.RestartRequired = append(d.RestartRequired, "index")
	}
	if old.Sentiment != new.Sentiment {
		d.RestartRequired = append(d.RestartRequired, "sentiment")
	}
	if old.MCP != new.MCP {
		d.RestartRequired = append(d.RestartRequired, "mcp")
	}
	return d
}

// Empty reports whether d records no change at all.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.BotChanged && len(d.RestartRequired) == 0
}

func corpusEqual(a, b CorpusConfig) bool {
	return a.CacheCapacity == b.CacheCapacity &&
		a.LoadConcurrency == b.LoadConcurrency &&
		slices.Equal(a.Filter, b.Filter)
}
