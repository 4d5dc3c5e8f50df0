// Package validation содержит функции валидации входных данных.
package validation

import "unicode"

var nubanWeights = [12]int{3, 7, 3, 3, 7, 3, 3, 7, 3, 3, 7, 3}

// IsValidNUBAN проверяет десятизначный номер счёта по контрольной цифре NUBAN
// для трёхзначного кода банка.
func IsValidNUBAN(bankCode, account string) bool {
	if len(bankCode) != 3 || len(account) != 10 {
		return false
	}

	digits := bankCode + account
	sum := 0
	for i, ch := range digits {
		if !unicode.IsDigit(ch) || ch > '9' {
			return false
		}
		if i < len(nubanWeights) {
			sum += int(ch-'0') * nubanWeights[i]
		}
	}

	check := (10 - sum%10) % 10
	return check == int(digits[len(digits)-1]-'0')
}
