package main

// Damage is floor(attack * (1 - def/(def+20))), computed in integers as
// attack*20/(def+20) so the result never suffers float rounding.
func Damage(attacker, target *Unit) int {
	def := target.Defense
	if def < 0 {
		def = 0
	}
	return attacker.Attack * 20 / (def + 20)
}

// ApplyDamage subtracts health and returns true if the unit died
func ApplyDamage(u *Unit, damage int) bool {
	if !u.Alive() {
		return false
	}
	u.HP -= damage
	return u.HP <= 0
}

// Heal restores health up to the cap and returns the amount restored
func Heal(u *Unit, amount int) int {
	before := u.HP
	u.HP = ClampInt(u.HP+amount, u.HP, u.MaxHP)
	return u.HP - before
}
