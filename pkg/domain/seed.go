package domain

// Seed returns the records every process starts with unless persisted state
// is loaded on start.
func Seed() Collection {
	return Collection{
		{ID: 1, Pokemon: Pokemon{Name: "Pikachu", Category: "Electric", Level: 25}},
		{ID: 2, Pokemon: Pokemon{Name: "Bulbasaur", Category: "Grass/Poison", Level: 15}},
		{ID: 3, Pokemon: Pokemon{Name: "Charmander", Category: "Fire", Level: 18}},
		{ID: 4, Pokemon: Pokemon{Name: "Squirtle", Category: "Water", Level: 20}},
		{ID: 5, Pokemon: Pokemon{Name: "Gengar", Category: "Ghost/Poison", Level: 35}},
	}
}
