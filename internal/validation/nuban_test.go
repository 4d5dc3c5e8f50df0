package validation

import "testing"

func TestIsValidNUBAN(t *testing.T) {
	tests := []struct {
		name     string
		bankCode string
		account  string
		valid    bool
	}{
		{
			name:     "valid example 1",
			bankCode: "044",
			account:  "1234567895",
			valid:    true,
		},
		{
			name:     "valid example 2",
			bankCode: "058",
			account:  "0002453780",
			valid:    true,
		},
		{
			name:     "valid example 3",
			bankCode: "011",
			account:  "9876543215",
			valid:    true,
		},
		{
			name:     "invalid check digit",
			bankCode: "044",
			account:  "1234567890",
			valid:    false,
		},
		{
			name:     "check digit from another bank",
			bankCode: "058",
			account:  "1234567895",
			valid:    false,
		},
		{
			name:     "contains letters",
			bankCode: "044",
			account:  "12345a7895",
			valid:    false,
		},
		{
			name:     "short account",
			bankCode: "044",
			account:  "123456789",
			valid:    false,
		},
		{
			name:     "bad bank code",
			bankCode: "44",
			account:  "1234567895",
			valid:    false,
		},
		{
			name:     "empty",
			bankCode: "",
			account:  "",
			valid:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidNUBAN(tt.bankCode, tt.account)
			if got != tt.valid {
				t.Fatalf("IsValidNUBAN(%q, %q) = %v, want %v", tt.bankCode, tt.account, got, tt.valid)
			}
		})
	}
}
