package observability

// Config captures opt-in observability toggles for the particle server.
type Config struct {
	EnablePprofTrace bool
}
