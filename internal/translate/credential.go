package translate

import "os"

// credentialEnvVars are the ambient variables a credential may have been
// sourced from or exported to; Scrub clears all of them.
var credentialEnvVars = []string{
	"GEMINI_API_KEY",
	"OPENAI_API_KEY",
}

// Credential holds the translation backend's API key for the duration of a
// flow. It is never placed into process-wide environment state; the gemini
// CLI backend receives it only through the child process environment.
// Scrub must be called on every exit path.
type Credential struct {
	value []byte
}

func NewCredential(value string) *Credential {
	return &Credential{value: []byte(value)}
}

func (c *Credential) Value() string {
	return string(c.value)
}

func (c *Credential) Empty() bool {
	return len(c.value) == 0
}

// Scrub zeroes the held key and removes any ambient copies from the process
// environment. Safe to call more than once.
func (c *Credential) Scrub() {
	for i := range c.value {
		c.value[i] = 0
	}
	c.value = c.value[:0]

	for _, name := range credentialEnvVars {
		_ = os.Unsetenv(name)
	}
}
