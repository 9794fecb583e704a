package envvar

const (
	// LectorEnv is the environment variable used to determine the environment
	LectorEnv = "LECTOR_ENV"

	// LectorConfigPath is the environment variable used to locate the config file
	LectorConfigPath = "LECTOR_CONFIG"

	// LectorCacheDir is the environment variable used to override the audio cache directory
	LectorCacheDir = "LECTOR_CACHE_DIR"

	// LectorOpenAIKey is the environment variable holding the OpenAI API key
	LectorOpenAIKey = "OPENAI_API_KEY"

	// Prefix is prepended to every config override read from the environment.
	Prefix = "LECTOR_"
)
