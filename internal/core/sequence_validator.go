package core

import (
	"fmt"
	"sync"
)

// SequenceValidator validates source sequences per partition. Inbound events
// must arrive in order within their partition (one network's reports, one
// key's manager ops); across partitions no ordering is required.
type SequenceValidator struct {
	mu              sync.Mutex
	expectedNextSeq map[string]int64 // partition -> next expected sequence
}

func NewSequenceValidator() *SequenceValidator {
	return &SequenceValidator{
		expectedNextSeq: make(map[string]int64),
	}
}

// ValidateSequence checks source sequence ordering and advances the
// partition's watermark on the expected sequence.
func (sv *SequenceValidator) ValidateSequence(
	partition string,
	sourceSequence int64,
	isDuplicate bool,
) error {
	sv.mu.Lock()
	defer sv.mu.Unlock()

	expected := sv.expectedNextSeq[partition]

	if sourceSequence < expected {
		if isDuplicate {
			// Already processed — redelivery of an old message.
			return nil
		}
		return fmt.Errorf("out-of-order event: partition=%s, expected=%d, got=%d",
			partition, expected, sourceSequence)
	}

	if sourceSequence == expected {
		sv.expectedNextSeq[partition] = expected + 1
		return nil
	}

	return fmt.Errorf("sequence gap: partition=%s, expected=%d, got=%d",
		partition, expected, sourceSequence)
}

// ExpectedSequence returns the next expected sequence for a partition.
func (sv *SequenceValidator) ExpectedSequence(partition string) int64 {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	return sv.expectedNextSeq[partition]
}

// RestorePartition initializes a partition watermark (used during recovery).
func (sv *SequenceValidator) RestorePartition(partition string, seq int64) {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	sv.expectedNextSeq[partition] = seq
}
