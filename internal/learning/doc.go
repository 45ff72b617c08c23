// Package learning folds reviewer feedback into per-(species, term) patterns.
//
// Approvals raise a pattern's confidence and pull its mean positional delta
// toward zero, rejections lower confidence and record the reason, and
// corrections fold the corrected-minus-original delta into a weighted running
// mean. Patterns only influence predictions once they have accumulated
// Params.MinSamples samples.
//
// Species are learned independently; nothing learned for one species is
// applied to another.
package learning
