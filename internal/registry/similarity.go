package registry

// Winkler prefix parameters.
const (
	winklerPrefixLimit = 4
	winklerScaling     = 0.1
)

// JaroWinkler returns the Jaro-Winkler similarity of a and b in [0,1].
// Comparison is rune-wise and case-sensitive; callers fold case first.
func JaroWinkler(a, b string) float64 {
	if a == b {
		return 1.0
	}
	s1, s2 := []rune(a), []rune(b)
	len1, len2 := len(s1), len(s2)
	if len1 == 0 || len2 == 0 {
		return 0.0
	}

	window := max(len1, len2)/2 - 1
	if window < 0 {
		window = 0
	}

	m1 := make([]bool, len1)
	m2 := make([]bool, len2)
	matches := 0
	for i := 0; i < len1; i++ {
		lo := max(0, i-window)
		hi := min(i+window+1, len2)
		for j := lo; j < hi; j++ {
			if m2[j] || s1[i] != s2[j] {
				continue
			}
			m1[i], m2[j] = true, true
			matches++
			break
		}
	}
	if matches == 0 {
		return 0.0
	}

	transpositions := 0
	k := 0
	for i := 0; i < len1; i++ {
		if !m1[i] {
			continue
		}
		for !m2[k] {
			k++
		}
		if s1[i] != s2[k] {
			transpositions++
		}
		k++
	}
	transpositions /= 2

	m := float64(matches)
	jaro := (m/float64(len1) + m/float64(len2) + (m-float64(transpositions))/m) / 3.0

	prefix := 0
	for i := 0; i < min(len1, len2, winklerPrefixLimit); i++ {
		if s1[i] != s2[i] {
			break
		}
		prefix++
	}

	return jaro + float64(prefix)*winklerScaling*(1.0-jaro)
}
