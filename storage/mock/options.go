package mockstorage

// Option configures a mock Store
type Option func(*Store)

// WithFault fails every call of op with err
func WithFault(op Op, err error) Option {
	return func(m *Store) {
		m.fault = func(o Op, _ string) error {
			if o == op {
				return err
			}
			return nil
		}
	}
}

// WithFaultFunc decides per call whether to fail
func WithFaultFunc(fn func(op Op, path string) error) Option {
	return func(m *Store) {
		m.fault = fn
	}
}
