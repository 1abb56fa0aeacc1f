package field

// Fields shared by material models and the driver
var (
	Volume            = NewSpec(Scalar, Stateless, "Volume")
	WeightedVolume    = NewSpec(Scalar, Stateless, "Weighted_Volume")
	NumberOfNeighbors = NewSpec(Scalar, Stateless, "Number_Of_Neighbors")
	Dilatation        = NewSpec(Scalar, Stateful, "Dilatation")

	Coordinates3D  = NewSpec(Vector3D, Stateless, "Coordinates")
	Displacement3D = NewSpec(Vector3D, Stateful, "Displacement")
	Velocity3D     = NewSpec(Vector3D, Stateful, "Velocity")
	Force3D        = NewSpec(Vector3D, Stateful, "Force")

	BondDamage = NewSpec(Bond, Stateful, "Bond_Damage")
)

// Known lists the shared fields.
func Known() []Spec {
	return []Spec{
		Volume, WeightedVolume, NumberOfNeighbors, Dilatation,
		Coordinates3D, Displacement3D, Velocity3D, Force3D,
		BondDamage,
	}
}
