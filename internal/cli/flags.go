package cli

// Flags holds all command-line flag values
type Flags struct {
	// Global flags
	CfgFile    string
	AssetsRoot string
	LogLevel   string

	// build flags
	Curriculum    string
	AudioProvider string
	AudioFormat   string
	Voice         string
	Language      string
	Workers       int
	MissingAudio  string

	// anki flags
	DeckName   string
	AnkiCSV    bool
	AnkiOutput string

	// publish flags
	Bucket string
	Prefix string
}

// NewFlags creates a new Flags instance with default values
func NewFlags() *Flags {
	return &Flags{
		AssetsRoot:    "./assets",
		LogLevel:      "info",
		AudioProvider: "edge",
		Language:      "ta",
		Workers:       1,
		MissingAudio:  "keep",
		DeckName:      "Tamil Setu",
	}
}
