package sunat

import (
	"fmt"
	"unicode"
)

// pesos para el cálculo del dígito verificador del RUC (módulo 11, SUNAT).
// Se aplican a los 10 primeros dígitos del RUC, de izquierda a derecha.
var rucWeights = [10]int{5, 4, 3, 2, 7, 6, 5, 4, 3, 2}

// ValidateRUC valida que el RUC tenga 11 dígitos, un prefijo de tipo de
// contribuyente conocido (10, 15, 17, 20) y un dígito verificador correcto
// según el algoritmo módulo 11 de SUNAT.
func ValidateRUC(ruc string) error {
	digits := extractDigits(ruc)
	if len(digits) != 11 {
		return fmt.Errorf("sunat: RUC debe tener 11 dígitos, se encontraron %d", len(digits))
	}
	switch digits[:2] {
	case "10", "15", "17", "20":
		// prefijos válidos: persona natural, otros, persona jurídica
	default:
		return fmt.Errorf("sunat: prefijo de RUC desconocido %q", digits[:2])
	}

	var sum int
	for i, r := range digits[:10] {
		sum += int(r-'0') * rucWeights[i]
	}
	check := 11 - sum%11
	if check >= 10 {
		check -= 10
	}
	if got := int(digits[10] - '0'); got != check {
		return fmt.Errorf("sunat: dígito verificador de RUC inválido: esperado %d, encontrado %d", check, got)
	}
	return nil
}

// ValidateDNI valida el formato del DNI (8 dígitos). El DNI no lleva dígito verificador.
func ValidateDNI(dni string) error {
	digits := extractDigits(dni)
	if len(digits) != 8 {
		return fmt.Errorf("sunat: DNI debe tener 8 dígitos, se encontraron %d", len(digits))
	}
	return nil
}

// extractDigits devuelve solo los dígitos de s (ignora puntos, guiones y espacios).
func extractDigits(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if unicode.IsDigit(r) {
			out = append(out, r)
		}
	}
	return string(out)
}
