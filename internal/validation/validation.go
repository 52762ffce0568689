// Package validation содержит функции валидации входных данных.
package validation

// IsValidOrderID проверяет формат идентификатора заказа: префикс ORD-,
// не длиннее 64 символов, только латиница, цифры и дефис.
func IsValidOrderID(id string) bool {
	if len(id) <= len("ORD-") || len(id) > 64 {
		return false
	}
	if id[:4] != "ORD-" {
		return false
	}

	for i := 4; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c == '-':
		default:
			return false
		}
	}

	return true
}
