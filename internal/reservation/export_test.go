package reservation

// SetNumberSource replaces the reservation number generator used by s.
func SetNumberSource(s *ReservationService, next func() string) {
	s.newNumber = next
}
