package models

// Themes a parade entry can represent.
var Themes = []string{
	"Nacimiento",
	"Niño Viajero",
	"Pasajes bíblicos",
	"Personajes de la navidad",
	"Grupo folklórico",
	"Grupos artístico navideño",
	"Otros",
}

// ThemesRequiringDetail need a free text detail merged into the theme.
var ThemesRequiringDetail = []string{
	"Pasajes bíblicos",
	"Personajes de la navidad",
	"Grupo folklórico",
	"Grupos artístico navideño",
	"Otros",
}

// VehicleTypes accepted by the registration form.
var VehicleTypes = []string{
	"Automóvil",
	"Camioneta",
	"SUV",
	"Camión",
	"Bus",
	"Carroza",
	"Motocicleta",
	"Otro",
}

// Catalog feeds the registration form selects.
type Catalog struct {
	Tematicas           []string `json:"tematicas"`
	TematicasConDetalle []string `json:"tematicasConDetalle"`
	TiposVehiculo       []string `json:"tiposVehiculo"`
}

// RequiresDetail reports whether theme needs a detail.
func RequiresDetail(theme string) bool {
	return contains(ThemesRequiringDetail, theme)
}

// IsTheme reports whether theme is in the catalog.
func IsTheme(theme string) bool {
	return contains(Themes, theme)
}

// IsVehicleType reports whether vehicle is in the catalog.
func IsVehicleType(vehicle string) bool {
	return contains(VehicleTypes, vehicle)
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
