package crucible

// Installer groups related registrations into a reusable unit, typically one
// per subsystem.
//
//	type StorageInstaller struct{}
//
//	func (StorageInstaller) Install(c *crucible.Container) error {
//	    return c.Register(NewDatabase).Singleton().AsSelf().Err()
//	}
type Installer interface {
	Install(c *Container) error
}

// InstallerFunc adapts a function to the Installer interface.
type InstallerFunc func(c *Container) error

// Install implements Installer.
func (f InstallerFunc) Install(c *Container) error { return f(c) }

// Install runs each installer against this container in order, stopping at
// the first error.
func (c *Container) Install(installers ...Installer) error {
	if c.st.isDisposed() {
		return ErrContainerDisposed
	}

	for _, installer := range installers {
		if installer == nil {
			continue
		}

		if err := installer.Install(c); err != nil {
			return err
		}
	}

	return nil
}
