package models

// Property is one rental unit watched on both platforms.
type Property struct {
	Name  string `json:"name" yaml:"name"`
	FeedA string `json:"-" yaml:"feed_a"`
	FeedB string `json:"-" yaml:"feed_b"`
	// MirrorA receives source-B bookings; MirrorB receives source-A bookings.
	MirrorA string `json:"mirror_a,omitempty" yaml:"mirror_a"`
	MirrorB string `json:"mirror_b,omitempty" yaml:"mirror_b"`
}

// Feed returns the feed URL of src.
func (p Property) Feed(src Source) string {
	if src == SourceA {
		return p.FeedA
	}
	return p.FeedB
}

// MirrorFor returns the mirror calendar that receives the bookings of src,
// or "" when that direction is not mirrored.
func (p Property) MirrorFor(src Source) string {
	if src == SourceA {
		return p.MirrorB
	}
	return p.MirrorA
}
