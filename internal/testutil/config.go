package testutil

import (
	"os"
	"strconv"
)

const (
	// Test token environment variables
	TestPokemonTCGAPIKey = "TEST_POKEMON_TCG_API_KEY"
	TestTrackerAPIKey    = "TEST_POKEMON_PRICE_TRACKER_API_KEY"
	TestJustTCGAPIKey    = "TEST_JUSTTCG_API_KEY"

	// TestPostgresDSN points the catalog tests at a disposable Postgres database
	TestPostgresDSN = "PRICESVC_TEST_PG_DSN"

	// Default test values when environment variables are not set
	DefaultTestToken = "test-token"
	DefaultTestKey   = "test-key"
)

// GetTestToken returns a test token from environment variable or default
func GetTestToken(envVar, defaultValue string) string {
	if token := os.Getenv(envVar); token != "" {
		return token
	}
	return defaultValue
}

// GetTestPokemonTCGAPIKey returns the pokemontcg.io key used by tests
func GetTestPokemonTCGAPIKey() string {
	return GetTestToken(TestPokemonTCGAPIKey, DefaultTestKey)
}

// GetTestTrackerAPIKey returns the price tracker key used by tests
func GetTestTrackerAPIKey() string {
	return GetTestToken(TestTrackerAPIKey, DefaultTestToken)
}

// GetTestJustTCGAPIKey returns the JustTCG key used by tests
func GetTestJustTCGAPIKey() string {
	return GetTestToken(TestJustTCGAPIKey, DefaultTestToken)
}

// GetTestPostgresDSN returns the Postgres DSN for catalog tests, empty when unset
func GetTestPostgresDSN() string {
	return GetTestToken(TestPostgresDSN, "")
}

// IsTestMode returns true if we're running in test mode
func IsTestMode() bool {
	testMode := os.Getenv("TEST_MODE")
	if testMode == "" {
		return true // Default to test mode if not specified
	}

	enabled, _ := strconv.ParseBool(testMode)
	return enabled
}

// GetTestBaseURL returns a test base URL for the given provider
func GetTestBaseURL(service string) string {
	switch service {
	case "pokemontcg":
		return "https://api.pokemontcg.test"
	case "tracker":
		return "https://api.pokemonpricetracker.test"
	case "justtcg":
		return "https://api.justtcg.test"
	case "cardmarket":
		return "https://www.cardmarket.test"
	default:
		return "https://api.test.local"
	}
}
