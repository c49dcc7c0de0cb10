package util

// ApplyConversion applies a converter function to each of the models
// provided, returning the slice of converted values. The models slice
// must not be nil.
func ApplyConversion[T any, K any](models []T, converter func(T) K) []K {
	dtos := make([]K, 0, len(models))
	for _, model := range models {
		dtos = append(dtos, converter(model))
	}

	return dtos
}
