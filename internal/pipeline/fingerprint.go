package pipeline

// fingerprintStrip holds every rune removed before truncation: ASCII and
// full-width spaces, common punctuation, and the bracket pairs Japanese
// headlines decorate titles with.
var fingerprintStrip = map[rune]struct{}{
	' ': {},
	'　': {},
	',': {},
	'、': {},
	'.': {},
	'。': {},
	'-': {},
	'_': {},
	'<': {},
	'>': {},
	'＜': {},
	'＞': {},
	'(': {},
	')': {},
	'（': {},
	'）': {},
	'【': {},
	'】': {},
	'「': {},
	'」': {},
	'『': {},
	'』': {},
}

const fingerprintLength = 20

// Fingerprint derives the near-duplicate key of a title: strip decoration
// runes, then keep the first 20 runes of what remains.
func Fingerprint(title string) string {
	kept := make([]rune, 0, fingerprintLength)
	for _, r := range title {
		if _, drop := fingerprintStrip[r]; drop {
			continue
		}
		kept = append(kept, r)
		if len(kept) == fingerprintLength {
			break
		}
	}
	return string(kept)
}
