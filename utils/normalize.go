package utils

import (
	"reflect"
	"strings"
)

// NormalizeDTO trims string fields and rounds float64 fields in place on a
// pointer-to-struct create DTO (enrollment, class, payment). Keys derived
// from these fields (lock keys, uniqueness tuples) then match regardless of
// stray whitespace in the submission.
func NormalizeDTO(dto any) {
	s := structValue(dto)
	if !s.IsValid() {
		return
	}
	for i := 0; i < s.NumField(); i++ {
		f := s.Field(i)
		if !f.CanSet() {
			continue
		}
		switch f.Kind() {
		case reflect.String:
			f.SetString(strings.TrimSpace(f.String()))
		case reflect.Float64:
			f.SetFloat(Round2(f.Float()))
		}
	}
}

// NormalizePtrDTO is NormalizeDTO for partial-update DTOs whose fields are
// pointers. Nil fields stay nil, so an absent field is never mistaken for
// an empty one.
func NormalizePtrDTO(dto any) {
	s := structValue(dto)
	if !s.IsValid() {
		return
	}
	for i := 0; i < s.NumField(); i++ {
		f := s.Field(i)
		if f.Kind() != reflect.Ptr || f.IsNil() {
			continue
		}
		ef := f.Elem()
		switch ef.Kind() {
		case reflect.String:
			ef.SetString(strings.TrimSpace(ef.String()))
		case reflect.Float64:
			ef.SetFloat(Round2(ef.Float()))
		}
	}
}

func structValue(dto any) reflect.Value {
	v := reflect.ValueOf(dto)
	if v.Kind() != reflect.Ptr {
		return reflect.Value{}
	}
	s := v.Elem()
	if s.Kind() != reflect.Struct {
		return reflect.Value{}
	}
	return s
}
