package types

// SecretString wraps sensitive configuration values (API keys, signing
// secrets, admin tokens) so they cannot leak through logs or fmt verbs.
// Call Reveal() explicitly at the point of use.
type SecretString string

// String implements fmt.Stringer and always redacts the value.
func (s SecretString) String() string {
	return "[REDACTED]"
}

// MarshalJSON redacts the value in JSON output as well.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return []byte(`"[REDACTED]"`), nil
}

// Reveal returns the underlying secret value.
func (s SecretString) Reveal() string {
	return string(s)
}

// IsEmpty reports whether the secret is unset.
func (s SecretString) IsEmpty() bool {
	return len(s) == 0
}
