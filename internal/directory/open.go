package directory

import "time"

// Options selects the directory sources a process consults.
type Options struct {
	// File is a YAML roster loaded at startup.
	File string
	// URL is a member service queried through a Cache.
	URL           string
	Token         string
	LookupTimeout time.Duration
	RetryAfter    time.Duration
	// Seed entries are consulted before the file.
	Seed []Participant
}

// Open builds the lookup chain: seed entries, the roster file, then the
// member service. Any source may be absent.
func Open(opts Options) (Directory, error) {
	static := NewStatic(opts.Seed...)
	chain := Chain{static}

	if opts.File != "" {
		file, err := LoadFile(opts.File)
		if err != nil {
			return nil, err
		}
		chain = append(chain, file)
	}
	if opts.URL != "" {
		chain = append(chain, NewCache(NewHTTPResolver(opts.URL, opts.Token), opts.LookupTimeout, opts.RetryAfter))
	}
	return chain, nil
}
