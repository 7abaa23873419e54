// Package vocab loads the curated lexicon and reduces transcripts to the
// segments containing words worth studying. Matched words are recorded once
// per (user, lemma, language) in the shared database; the srs package
// attaches review schedules to them.
package vocab
