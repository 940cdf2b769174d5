package ports

// Identity supplies the signed-in actor and logout notifications.
type Identity interface {
	CurrentActor() (string, bool)
	// OnLogout registers fn to run with the actor id whenever that actor signs out.
	OnLogout(fn func(actor string))
}
