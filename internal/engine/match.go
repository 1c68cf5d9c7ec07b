package engine

import "fmt"

// MaxTicketLen is the widest ticket the lottery program accepts. Histograms
// carry one bucket per possible match count, 0 through MaxTicketLen.
const MaxTicketLen = 6

// Histogram counts tickets per match level; index is the match count.
type Histogram [MaxTicketLen + 1]uint64

// Add records one ticket with the given match count.
func (h *Histogram) Add(matches int) error {
	if matches < 0 || matches > MaxTicketLen {
		return fmt.Errorf("%w: match count %d outside 0..%d", ErrInvalidInput, matches, MaxTicketLen)
	}
	h[matches]++
	return nil
}

// Total returns the number of tickets recorded.
func (h Histogram) Total() uint64 {
	var n uint64
	for _, c := range h {
		n += c
	}
	return n
}

// CountMatches counts equal values between two ascending sequences with a
// two-pointer merge. A value duplicated in one sequence matches at most as
// many times as it appears in the other.
func CountMatches(drawn, picked []int) int {
	i, j, count := 0, 0, 0
	for i < len(drawn) && j < len(picked) {
		switch {
		case drawn[i] == picked[j]:
			count++
			i++
			j++
		case drawn[i] < picked[j]:
			i++
		default:
			j++
		}
	}
	return count
}

// ValidateNumbers checks a ticket or drawn result: numbers are in 1..maxNumber
// and ascending, optionally followed by zero padding. Duplicates are allowed
// since generated tickets are not guaranteed unique.
func ValidateNumbers(numbers []int, maxNumber int) error {
	if len(numbers) > MaxTicketLen {
		return fmt.Errorf("%w: %d numbers exceeds max ticket length %d", ErrInvalidInput, len(numbers), MaxTicketLen)
	}
	padding := false
	prev := 0
	for i, n := range numbers {
		if n == 0 {
			padding = true
			continue
		}
		if padding {
			return fmt.Errorf("%w: number %d at position %d follows zero padding", ErrInvalidInput, n, i)
		}
		if n < 1 || (maxNumber > 0 && n > maxNumber) {
			return fmt.Errorf("%w: number %d outside 1..%d", ErrInvalidInput, n, maxNumber)
		}
		if n < prev {
			return fmt.Errorf("%w: numbers not ascending at position %d", ErrInvalidInput, i)
		}
		prev = n
	}
	return nil
}

// MatchTicket compares the first length numbers of a ticket against the first
// length numbers of the drawn result. Zero padding never matches because drawn
// numbers start at 1.
func MatchTicket(drawn, ticket []int, length int) int {
	return CountMatches(nonZero(head(drawn, length)), nonZero(head(ticket, length)))
}

// BuildHistogram matches every ticket against the drawn result and buckets the
// counts. It also returns each ticket's match count in input order. Tickets
// are validated first; the whole histogram fails on the first malformed ticket.
func BuildHistogram(drawn []int, tickets [][]int, length, maxNumber int) (Histogram, []int, error) {
	var h Histogram
	if err := ValidateNumbers(head(drawn, length), maxNumber); err != nil {
		return h, nil, fmt.Errorf("drawn result: %w", err)
	}
	matches := make([]int, len(tickets))
	for i, t := range tickets {
		if err := ValidateNumbers(t, maxNumber); err != nil {
			return Histogram{}, nil, fmt.Errorf("ticket %d: %w", i, err)
		}
		matches[i] = MatchTicket(drawn, t, length)
		if err := h.Add(matches[i]); err != nil {
			return Histogram{}, nil, fmt.Errorf("ticket %d: %w", i, err)
		}
	}
	return h, matches, nil
}

func head(s []int, n int) []int {
	if n >= 0 && len(s) > n {
		return s[:n]
	}
	return s
}

func nonZero(s []int) []int {
	for i, n := range s {
		if n == 0 {
			return s[:i]
		}
	}
	return s
}
