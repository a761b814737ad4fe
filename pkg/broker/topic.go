package broker

import "strings"

// topicSeparator splits a topic into its ordered path components.
const topicSeparator = "/"

// Topic is a slash-separated routing key, e.g. "/zeek/events/conn". Each
// Topic in a Filter is compared as a prefix against a published Topic's
// components.
type Topic string

// NewTopic joins components with the topic separator.
func NewTopic(components ...string) Topic {
	return Topic(strings.Join(components, topicSeparator))
}

// Components returns the ordered, non-empty path segments of the topic.
func (t Topic) Components() []string {
	raw := strings.Split(string(t), topicSeparator)
	out := make([]string, 0, len(raw))
	for _, c := range raw {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// IsPrefixOf reports whether t's components are a prefix of other's
// components, i.e. whether a subscriber filtering on t would match a
// message published on other.
func (t Topic) IsPrefixOf(other Topic) bool {
	prefix := t.Components()
	full := other.Components()
	if len(prefix) > len(full) {
		return false
	}
	for i, c := range prefix {
		if full[i] != c {
			return false
		}
	}
	return true
}

func (t Topic) String() string {
	return string(t)
}

// Filter is an unordered set of topic prefixes expressing interest. A
// message matches a Filter iff at least one of its topics is a prefix of
// the message's topic.
type Filter []Topic

// Matches reports whether any entry of the filter is a prefix of t.
func (f Filter) Matches(t Topic) bool {
	for _, prefix := range f {
		if prefix.IsPrefixOf(t) {
			return true
		}
	}
	return false
}

// Union returns the deduplicated union of two filters, preserving the
// first filter's ordering and appending genuinely new entries from the
// second.
func (f Filter) Union(other Filter) Filter {
	seen := make(map[Topic]struct{}, len(f))
	out := make(Filter, 0, len(f)+len(other))
	for _, t := range f {
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	for _, t := range other {
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

// Equal reports whether two filters contain the same set of topics,
// regardless of order.
func (f Filter) Equal(other Filter) bool {
	if len(f) != len(other) {
		return false
	}
	seen := make(map[Topic]struct{}, len(f))
	for _, t := range f {
		seen[t] = struct{}{}
	}
	for _, t := range other {
		if _, ok := seen[t]; !ok {
			return false
		}
	}
	return true
}
