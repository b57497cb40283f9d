package app

import (
	"sync/atomic"

	"github.com/MrWong99/scriptvox/internal/classify"
	"github.com/MrWong99/scriptvox/pkg/types"
)

// liveClassifier delegates to a classifier that can be replaced while turns
// are in flight. A turn classifies with whichever set was current when its
// transcript arrived.
type liveClassifier struct {
	current atomic.Pointer[classify.Classifier]
}

func newLiveClassifier(c *classify.Classifier) *liveClassifier {
	lc := &liveClassifier{}
	lc.current.Store(c)
	return lc
}

func (l *liveClassifier) Store(c *classify.Classifier) { l.current.Store(c) }

func (l *liveClassifier) Classify(text string) types.Classification {
	return l.current.Load().Classify(text)
}
